package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

// styles renders through lipgloss only when writing to a terminal so piped
// output stays plain text.
type styles struct {
	enabled bool
	title   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	muted   lipgloss.Style
	header  lipgloss.Style
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newStyles(enabled bool) styles {
	return styles{
		enabled: enabled,
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		header:  lipgloss.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

// rate colors a percentage by how concerning it is
func (s styles) rate(pct float64, text string) string {
	switch {
	case pct >= 90:
		return s.render(s.ok, text)
	case pct >= 70:
		return s.render(s.warn, text)
	default:
		return s.render(s.bad, text)
	}
}

func (s styles) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if s.enabled {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.String()
}
