package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"memetrader/internal/model"
)

func newComputeCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute indicators over a JSON file of price samples",
		Long: `Reads [{"ts": ..., "price": ...}, ...] where ts is RFC3339 or epoch
millis, in ascending time order. Use --file - to read stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := readSamples(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			engine, kinds, err := opts.engine()
			if err != nil {
				return err
			}
			series := engine.Compute(samples, kinds)
			return render(cmd.OutOrStdout(), samples, series, opts.asJSON, opts.tail)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "price samples JSON file, or - for stdin")
	cmd.MarkFlagRequired("file")
	return cmd
}

func readSamples(stdin io.Reader, path string) ([]model.PriceSample, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open samples: %w", err)
		}
		defer f.Close()
		r = f
	}

	var samples []model.PriceSample
	if err := json.NewDecoder(r).Decode(&samples); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	return samples, nil
}
