package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatPlain = "plain"
)

// printer handles table, JSON, or plain line output.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(format string, w io.Writer) *printer {
	return &printer{format: format, w: w}
}

// outputFormat returns the --output flag, defaulting to a table on a terminal
// and plain lines otherwise.
func outputFormat(cmd *cobra.Command) (string, error) {
	f, _ := cmd.Flags().GetString("output")
	switch f {
	case "":
		if term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // G115: fd fits in int
			return formatTable, nil
		}
		return formatPlain, nil
	case formatTable, formatJSON, formatPlain:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or plain)", f)
	}
}

// json marshals v as indented JSON.
func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes rows using tabwriter. header is the first row.
func (p *printer) table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for i, h := range header {
		if i > 0 {
			_, _ = fmt.Fprint(tw, "\t")
		}
		_, _ = fmt.Fprint(tw, h)
	}
	_, _ = fmt.Fprintln(tw)
	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				_, _ = fmt.Fprint(tw, "\t")
			}
			_, _ = fmt.Fprint(tw, col)
		}
		_, _ = fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}

// lines prints one value per line.
func (p *printer) lines(values []string) {
	for _, v := range values {
		_, _ = fmt.Fprintln(p.w, v)
	}
}
