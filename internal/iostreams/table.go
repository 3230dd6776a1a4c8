package iostreams

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
)

// TablePrinter renders tabular data to IOStreams.Out. On a color terminal
// it renders styled headers and a divider; otherwise it writes plain
// tab-aligned columns for scripts.
type TablePrinter struct {
	ios     *IOStreams
	headers []string
	rows    [][]string
}

// NewTablePrinter creates a table printer with the given column headers.
func (s *IOStreams) NewTablePrinter(headers ...string) *TablePrinter {
	return &TablePrinter{ios: s, headers: headers}
}

// AddRow adds a data row. Missing columns are treated as empty.
func (tp *TablePrinter) AddRow(cols ...string) {
	tp.rows = append(tp.rows, cols)
}

// Len returns the number of data rows.
func (tp *TablePrinter) Len() int { return len(tp.rows) }

// Render writes the table.
func (tp *TablePrinter) Render() error {
	if len(tp.headers) == 0 {
		return nil
	}
	if tp.ios.IsOutputTTY() && tp.ios.ColorEnabled() {
		return tp.renderStyled()
	}
	return tp.renderPlain()
}

func (tp *TablePrinter) renderPlain() error {
	w := tabwriter.NewWriter(tp.ios.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(tp.headers, "\t"))
	for _, row := range tp.rows {
		fmt.Fprintln(w, strings.Join(tp.normalizeRow(row), "\t"))
	}
	return w.Flush()
}

func (tp *TablePrinter) renderStyled() error {
	const gap = 2
	numCols := len(tp.headers)

	// Columns size to content, then shrink evenly to fit the terminal.
	widths := make([]int, numCols)
	for i, h := range tp.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range tp.rows {
		for i, col := range tp.normalizeRow(row) {
			if w := lipgloss.Width(col); w > widths[i] {
				widths[i] = w
			}
		}
	}
	available := tp.ios.TerminalWidth() - gap*(numCols-1)
	total := 0
	for _, w := range widths {
		total += w
	}
	if total > available && available >= numCols {
		limit := available / numCols
		for i := range widths {
			if widths[i] > limit {
				widths[i] = limit
			}
		}
	}

	spacing := strings.Repeat(" ", gap)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	parts := make([]string, numCols)
	for i, h := range tp.headers {
		parts[i] = headerStyle.Width(widths[i]).Render(Truncate(h, widths[i]))
	}
	if _, err := fmt.Fprintln(tp.ios.Out, strings.Join(parts, spacing)); err != nil {
		return err
	}

	for i := range tp.headers {
		parts[i] = strings.Repeat("─", widths[i])
	}
	if _, err := fmt.Fprintln(tp.ios.Out, DividerStyle.Render(strings.Join(parts, spacing))); err != nil {
		return err
	}

	for _, row := range tp.rows {
		for i, col := range tp.normalizeRow(row) {
			parts[i] = lipgloss.NewStyle().Width(widths[i]).Render(Truncate(col, widths[i]))
		}
		if _, err := fmt.Fprintln(tp.ios.Out, strings.Join(parts, spacing)); err != nil {
			return err
		}
	}
	return nil
}

func (tp *TablePrinter) normalizeRow(row []string) []string {
	cols := make([]string, len(tp.headers))
	copy(cols, row)
	return cols
}

// Truncate shortens s to at most width display cells, ending in "…" when cut.
// Styled strings are measured by their visible width.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
