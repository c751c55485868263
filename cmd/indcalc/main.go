// cmd/indcalc computes indicator series from the command line, either over
// a local JSON price file or over prices fetched from the upstream API.
//
// Usage:
//
//	indcalc compute --file prices.json --kinds MA,RSI
//	indcalc fetch --pair <address> --timeframe 7d --kinds EMA --json
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"memetrader/config"
	"memetrader/internal/indicator"
	"memetrader/internal/logger"
	"memetrader/internal/model"
)

type rootOptions struct {
	kinds      string
	indicators string
	asJSON     bool
	tail       int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "indcalc",
		Short: "Compute MA/EMA/RSI series over price data",

		// SilenceUsage is an option to silence usage when an error occurs.
		SilenceUsage: true,

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init("indcalc", logger.ParseLevel(opts.logLevel))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.kinds, "kinds", "MA,EMA,RSI", "indicator kinds to compute: MA,EMA,RSI,MACD,BB")
	pf.StringVar(&opts.indicators, "indicators", "", "indicator set as TYPE:PERIOD,... (default MA:20,MA:50,EMA:12,EMA:26,RSI:14)")
	pf.BoolVar(&opts.asJSON, "json", false, "print series as JSON instead of a table")
	pf.IntVar(&opts.tail, "tail", 20, "table rows to show from the end (0 = all)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newComputeCmd(opts), newFetchCmd(opts))
	return root
}

// engine builds the indicator engine and kind selection from the flags.
func (o *rootOptions) engine() (*indicator.Engine, []model.IndicatorKind, error) {
	kinds, err := model.ParseIndicatorKinds(o.kinds)
	if err != nil {
		return nil, nil, err
	}
	return indicator.NewEngine(config.ParseIndicatorSpecs(o.indicators)), kinds, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Debug("indcalc failed", "error", err)
		os.Exit(1)
	}
}
