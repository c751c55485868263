package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"memetrader/internal/model"
	"memetrader/internal/pricefeed"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		pair      string
		timeframe string
		baseURL   string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a pair's prices from the upstream API and compute indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := model.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			engine, kinds, err := opts.engine()
			if err != nil {
				return err
			}

			client := pricefeed.NewClient(pricefeed.Config{
				BaseURL:    baseURL,
				APIKey:     os.Getenv("PRICEFEED_API_KEY"),
				Timeout:    timeout,
				MaxRetries: 3,
			})
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*timeout)
			defer cancel()

			samples, err := client.HistoricalPrices(ctx, pair, tf)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), samples, engine.Compute(samples, kinds), opts.asJSON, opts.tail)
		},
	}

	f := cmd.Flags()
	f.StringVar(&pair, "pair", "", "pair address")
	f.StringVar(&timeframe, "timeframe", "24h", "24h, 7d, 30d or 1y")
	f.StringVar(&baseURL, "base-url", envOr("PRICEFEED_BASE_URL", "https://api.dexscreener.com/latest"), "price API base URL")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	cmd.MarkFlagRequired("pair")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
