// Package render draws display tables and series to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// Plot dimensions used when PlotOptions leaves them zero.
const (
	DefaultPlotHeight = 15
	DefaultPlotWidth  = 80
)

var palette = []asciigraph.AnsiColor{
	asciigraph.Blue,
	asciigraph.Red,
	asciigraph.Green,
	asciigraph.Yellow,
	asciigraph.Magenta,
	asciigraph.Cyan,
	asciigraph.Orange,
	asciigraph.Purple,
}

// Table writes t with a title line above it.
func Table(w io.Writer, t model.Table) error {
	if t.Title != "" {
		if _, err := fmt.Fprintln(w, t.Title); err != nil {
			return err
		}
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(t.Headers)
	if len(t.Align) > 0 {
		align := make([]int, len(t.Align))
		for i, a := range t.Align {
			align[i] = tableAlign(a)
		}
		tw.SetColumnAlignment(align)
	}
	tw.AppendBulk(t.Rows)
	if len(t.Footer) > 0 {
		tw.SetFooter(t.Footer)
	}
	tw.Render()

	_, err := fmt.Fprintln(w)
	return err
}

// Tables writes each table in order.
func Tables(w io.Writer, tables []model.Table) error {
	for _, t := range tables {
		if err := Table(w, t); err != nil {
			return err
		}
	}
	return nil
}

func tableAlign(a model.Alignment) int {
	switch a {
	case model.AlignRight:
		return tablewriter.ALIGN_RIGHT
	case model.AlignCenter:
		return tablewriter.ALIGN_CENTER
	default:
		return tablewriter.ALIGN_LEFT
	}
}

// PlotOptions sizes a plot. Zero values use the defaults.
type PlotOptions struct {
	Height int
	Width  int
	// NoColor disables ANSI colors for non-terminal output.
	NoColor bool
}

// Plot writes s as an ASCII line chart followed by its time range and a
// legend. A series with no points prints a notice instead.
func Plot(w io.Writer, s model.Series, opts PlotOptions) error {
	if len(s.Values) == 0 || len(s.Labels) == 0 {
		_, err := fmt.Fprintf(w, "%s: no data\n", s.Title)
		return err
	}
	if opts.Height <= 0 {
		opts.Height = DefaultPlotHeight
	}
	if opts.Width <= 0 {
		opts.Width = DefaultPlotWidth
	}

	graphOpts := []asciigraph.Option{
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Precision(1),
		asciigraph.Caption(s.Title),
	}
	if !opts.NoColor {
		graphOpts = append(graphOpts, asciigraph.SeriesColors(colors(len(s.Values))...))
	}

	var b strings.Builder
	b.WriteString(asciigraph.PlotMany(padSingle(s.Values), graphOpts...))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  ->  %s\n", s.Labels[0], s.Labels[len(s.Labels)-1])
	for i, name := range s.Legends {
		if opts.NoColor {
			fmt.Fprintf(&b, "  [%d] %s\n", i+1, name)
			continue
		}
		c := palette[i%len(palette)]
		fmt.Fprintf(&b, "  %s■%s %s\n", c.String(), asciigraph.Default.String(), name)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func colors(n int) []asciigraph.AnsiColor {
	out := make([]asciigraph.AnsiColor, n)
	for i := range out {
		out[i] = palette[i%len(palette)]
	}
	return out
}

// padSingle repeats a lone point so a one-snapshot history still draws a
// flat line.
func padSingle(values [][]float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, v := range values {
		if len(v) == 1 {
			v = []float64{v[0], v[0]}
		}
		out[i] = v
	}
	return out
}

// Degradations lists active degradation messages after the report. Nothing
// is written when there are none.
func Degradations(w io.Writer, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("Warnings:\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "  - %s\n", m)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
