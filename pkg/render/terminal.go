package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/reconcile"
)

// familiarityStyles color a word by level, from unknown (red) to mastered (plain).
var familiarityStyles = [knowledge.MaxFamiliarity + 1]lipgloss.Style{
	lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA94D")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD43B")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("#69DB7C")),
	lipgloss.NewStyle(),
}

var readingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)

// Terminal is a Sink that keeps a colored line per handle.
type Terminal struct {
	mu       sync.Mutex
	lines    map[reconcile.Handle]string
	readings bool
}

// NewTerminal returns a terminal sink. With readings set, every word is
// followed by its pronunciation.
func NewTerminal(readings bool) *Terminal {
	return &Terminal{lines: make(map[reconcile.Handle]string), readings: readings}
}

func (t *Terminal) Render(h reconcile.Handle, instrs []reconcile.Instruction) error {
	var b strings.Builder
	for _, in := range instrs {
		b.WriteString(t.format(in))
	}
	t.mu.Lock()
	t.lines[h] = b.String()
	t.mu.Unlock()
	return nil
}

func (t *Terminal) format(in reconcile.Instruction) string {
	if in.Kind == reconcile.Plain {
		return in.Text
	}
	f := in.Familiarity
	if f < knowledge.MinFamiliarity || f > knowledge.MaxFamiliarity {
		f = knowledge.MinFamiliarity
	}
	out := familiarityStyles[f].Render(in.Text)
	if t.readings && in.Pronunciation != "" {
		out += readingStyle.Render("[" + in.Pronunciation + "]")
	}
	return out
}

// Line returns the rendered line of h.
func (t *Terminal) Line(h reconcile.Handle) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	line, ok := t.lines[h]
	return line, ok
}

// WriteRegions writes one line per region, falling back to the raw text of
// regions that were never rendered.
func (t *Terminal) WriteRegions(w io.Writer, regions []reconcile.Region) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range regions {
		line, ok := t.lines[r.Handle]
		if !ok {
			line = r.Text
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
