// Command scan runs a single listing pass and prints the candidates without
// notifying anyone.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/vitos/listing_alert_bot/internal/config"
	"github.com/vitos/listing_alert_bot/internal/domain"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/birdeye"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/dexscreener"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/logger"
	"github.com/vitos/listing_alert_bot/internal/usecase"
)

const defaultTimeout = 2 * time.Minute

type scanOptions struct {
	configPath string
	timeout    time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildScanCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func buildScanCmd() *cobra.Command {
	opts := &scanOptions{}

	scanCmd := &cobra.Command{
		Use:           "scan",
		Short:         "Fetch new listings once and print the candidates",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	scanCmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path to the YAML config")
	scanCmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", defaultTimeout, "Give up if the listings API keeps failing")

	return scanCmd
}

func runScan(ctx context.Context, out io.Writer, opts *scanOptions) error {
	cfg, err := config.Load(opts.configPath, ".env")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if opts.timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}

	log, err := logger.NewLogger("warn")
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	source := birdeye.NewClient(cfg.Listing.BaseURL, cfg.Listing.APIKey, cfg.Listing.Chain, cfg.Listing.Limit, cfg.Listing.Timeout.Std())
	resolver := dexscreener.NewClient(cfg.Dexscreener.BaseURL, cfg.Dexscreener.Timeout.Std(), log)
	fetcher := usecase.NewListingFetcher(source, resolver, usecase.FetcherConfig{
		Filter:             cfg.Filter.ToDomain(),
		ExcludedAddresses:  cfg.Listing.ExcludedAddresses,
		InitialBackoff:     cfg.Monitor.InitialBackoff.Std(),
		MaxBackoff:         cfg.Monitor.MaxBackoff.Std(),
		ResolveConcurrency: cfg.Listing.ResolveConcurrency,
	}, nil, log)

	candidates := fetcher.FetchCandidates(ctx)
	if candidates == nil {
		return fmt.Errorf("scan aborted: %w", ctx.Err())
	}

	renderCandidates(out, candidates, time.Now())
	return nil
}

func renderCandidates(w io.Writer, candidates []domain.CandidatePair, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Name", "Address", "Price", "Liquidity", "Vol 1h", "Age (min)", "Score"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})

	for _, c := range candidates {
		age := "?"
		if minutes, ok := c.AgeMinutes(now); ok {
			age = strconv.FormatFloat(minutes, 'f', 1, 64)
		}
		table.Append([]string{
			c.BaseToken.Symbol,
			c.BaseToken.Name,
			c.BaseToken.Address,
			c.Price.StringFixed(6),
			fmt.Sprintf("%.2f", c.LiquidityUSD),
			fmt.Sprintf("%.2f", c.VolumeH1USD),
			age,
			fmt.Sprintf("%.1f", usecase.Score(c.LiquidityUSD, 0, 0)),
		})
	}

	table.SetFooter([]string{"", "", "", "", "", "", "Total", strconv.Itoa(len(candidates))})
	table.Render()
}
