// Package telegram delivers alerts through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	tb "gopkg.in/tucnak/telebot.v2"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	DefaultTimeout = 10 * time.Second
)

// StatusError is returned for a non-2xx answer from the Bot API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telegram api status %d: %s", e.Code, e.Body)
}

// statusTransport fails the round trip on any non-2xx status, so a message
// only counts as sent when the webhook answered with success.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// chat addresses a numeric chat id or an @channel username.
type chat string

func (c chat) Recipient() string {
	return string(c)
}

// Notifier posts Markdown messages to a single chat.
type Notifier struct {
	bot    *tb.Bot
	chat   chat
	logger *zap.Logger
}

func NewNotifier(baseURL, token, chatID string, timeout time.Duration, logger *zap.Logger) (*Notifier, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: statusTransport{base: http.DefaultTransport},
	}

	// Offline skips the getMe handshake; the bot is only used to send.
	bot, err := tb.NewBot(tb.Settings{
		URL:     baseURL,
		Token:   token,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Notifier{
		bot:    bot,
		chat:   chat(chatID),
		logger: logger,
	}, nil
}

// Send reports whether the message was accepted. Failures are logged, never
// returned.
func (n *Notifier) Send(ctx context.Context, text string) bool {
	if err := ctx.Err(); err != nil {
		n.logger.Warn("Telegram send skipped", zap.Error(err))
		return false
	}

	msg, err := n.bot.Send(n.chat, text, &tb.SendOptions{
		ParseMode:             tb.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	if err != nil {
		n.logger.Error("Telegram API error", zap.String("chat", string(n.chat)), zap.Error(err))
		return false
	}
	if msg == nil {
		n.logger.Error("Telegram API returned no message", zap.String("chat", string(n.chat)))
		return false
	}
	return true
}
