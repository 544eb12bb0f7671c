package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	countStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// table writes aligned columns with a rule under the header row.
type table struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, headers ...string) *table {
	t := &table{w: tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)}
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = titleStyle.Render(h)
	}
	t.row(cells...)
	_, _ = fmt.Fprintln(t.w, strings.Repeat("─", 80))
	return t
}

func (t *table) row(cells ...string) {
	_, _ = fmt.Fprintln(t.w, strings.Join(cells, "\t")+"\t")
}

func (t *table) flush() { _ = t.w.Flush() }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
