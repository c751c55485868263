package main

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"memetrader/internal/model"
)

// render prints series either as indented JSON or as a table of the last
// tail samples with one column per series.
func render(w io.Writer, samples []model.PriceSample, series []model.IndicatorSeries, asJSON bool, tail int) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	header := table.Row{"#", "Time", "Price"}
	for _, s := range series {
		header = append(header, s.Label)
	}
	t.AppendHeader(header)

	cfgs := []table.ColumnConfig{{Number: 3, Align: text.AlignRight}}
	for i := range series {
		cfgs = append(cfgs, table.ColumnConfig{Number: 4 + i, Align: text.AlignRight})
	}
	t.SetColumnConfigs(cfgs)

	start := 0
	if tail > 0 && len(samples) > tail {
		start = len(samples) - tail
	}
	for i := start; i < len(samples); i++ {
		row := table.Row{i, samples[i].TS.UTC().Format(time.RFC3339), formatValue(samples[i].Price)}
		for _, s := range series {
			p := s.Points[i]
			if !p.Valid {
				row = append(row, "-")
				continue
			}
			row = append(row, formatValue(p.Y))
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "samples", len(samples)})
	t.Render()
	return nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
