package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTable writes an aligned table with upper-cased headers and two spaces
// between columns. On a terminal, cells are clipped to keep rows on one line.
func PrintTable(w io.Writer, columns []string, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	maxCell := 0
	if width := terminalWidth(w); width > 0 {
		maxCell = width/len(columns) - 2
		if maxCell < 8 {
			maxCell = 8
		}
	}
	clip := func(s string) string {
		s = strings.ReplaceAll(s, "\n", " ")
		if maxCell > 0 && len(s) > maxCell {
			return s[:maxCell-3] + "..."
		}
		return s
	}

	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(clip(c))
	}
	for _, row := range rows {
		for i := range columns {
			if i < len(row) && len(clip(row[i])) > widths[i] {
				widths[i] = len(clip(row[i]))
			}
		}
	}

	line := func(cells []string, upper bool) {
		parts := make([]string, len(columns))
		for i := range columns {
			var v string
			if i < len(cells) {
				v = clip(cells[i])
			}
			if upper {
				v = strings.ToUpper(v)
			}
			if i == len(columns)-1 {
				parts[i] = v
			} else {
				parts[i] = fmt.Sprintf("%-*s", widths[i], v)
			}
		}
		_, _ = fmt.Fprintln(w, strings.Join(parts, "  "))
	}
	line(columns, true)
	for _, row := range rows {
		line(row, false)
	}
}

// PrintDetail writes key: value lines in key order.
func PrintDetail(w io.Writer, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fields[k]
		if v == nil {
			v = ""
		}
		_, _ = fmt.Fprintf(w, "%s: %v\n", k, v)
	}
}

// printNames writes a single-column listing or a JSON array.
func printNames(cmd *cobra.Command, header string, names []string) error {
	out := cmd.OutOrStdout()
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(out, names)
	}
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	PrintTable(out, []string{header}, rows)
	return nil
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd())) //nolint:gosec // fd fits in int
	if err != nil {
		return 0
	}
	return width
}
