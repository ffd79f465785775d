package usecase

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/vitos/listing_alert_bot/internal/domain"
)

const (
	alertChain      = "Solana"
	alertDisclaimer = "*This is not financial advice.*"
)

var (
	// money groups thousands: 1234.5 -> 1,234.50
	money = message.NewPrinter(language.English)

	markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
)

// FormatAlert renders the Telegram Markdown message for a candidate.
func FormatAlert(pair domain.CandidatePair, score float64, ageMinutes int64, signals domain.SignalSet) string {
	var sb strings.Builder

	sb.WriteString("*🚀 NEW TOKEN DETECTED!*\n")
	fmt.Fprintf(&sb, "Name: %s (%s)\n", escapeMarkdown(pair.BaseToken.Name), escapeMarkdown(pair.BaseToken.Symbol))
	fmt.Fprintf(&sb, "Source: %s\n", pair.Venue)
	fmt.Fprintf(&sb, "Blockchain: %s\n", alertChain)
	fmt.Fprintf(&sb, "CA: `%s`\n", pair.BaseToken.Address)
	fmt.Fprintf(&sb, "24h Change: %.2f%%\n", pair.PriceChange24h)
	fmt.Fprintf(&sb, "%d tracked wallets hold this token\n", len(signals))
	sb.WriteString(money.Sprintf("Market Cap: $%.0f\n", pair.MarketCap))
	fmt.Fprintf(&sb, "Price: $%s\n", pair.Price.StringFixed(6))
	sb.WriteString(money.Sprintf("Liquidity: $%.2f\n", pair.LiquidityUSD))
	sb.WriteString(money.Sprintf("Volume 1h: $%.2f\n", pair.VolumeH1USD))
	fmt.Fprintf(&sb, "Age: %d minutes\n", ageMinutes)
	fmt.Fprintf(&sb, "Score: %.1f\n", score)

	if len(signals) > 0 {
		names := make([]string, 0, len(signals))
		for name := range signals {
			names = append(names, name)
		}
		sort.Strings(names)

		sb.WriteString("\n*Tracked wallets:*\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "%s: %s\n", escapeMarkdown(name), formatAmount(signals[name]))
		}
	}

	fmt.Fprintf(&sb, "[View on %s](%s)", pair.Venue, pair.URL)
	sb.WriteString("\n\n" + alertDisclaimer)
	return sb.String()
}

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func formatAmount(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
