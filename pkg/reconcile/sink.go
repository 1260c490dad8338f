package reconcile

import "github.com/japaniel/langparser/pkg/script"

// Kind distinguishes inert text from interactive word units.
type Kind int

const (
	Plain Kind = iota
	Word
)

func (k Kind) String() string {
	if k == Word {
		return "word"
	}
	return "plain"
}

// Instruction tells a sink how to materialize one span. For Plain only Text is set.
type Instruction struct {
	Kind          Kind
	Text          string
	Variant       script.Variant
	Familiarity   int
	Notes         string
	Pronunciation string
	LookupURL     string
}

// Instruction converts sp into a render instruction.
func (sp Span) Instruction() Instruction {
	if !sp.Token.Target {
		return Instruction{Kind: Plain, Text: sp.Token.Text}
	}
	return Instruction{
		Kind:          Word,
		Text:          sp.Token.Text,
		Variant:       sp.Token.Variant,
		Familiarity:   sp.State.Familiarity,
		Notes:         sp.State.Notes,
		Pronunciation: sp.State.Pronunciation,
		LookupURL:     sp.Token.Variant.LookupURL(sp.Token.Text),
	}
}

// Sink materializes the instructions of one region, replacing whatever was
// previously rendered for that handle.
type Sink interface {
	Render(h Handle, instrs []Instruction) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(h Handle, instrs []Instruction) error

func (f SinkFunc) Render(h Handle, instrs []Instruction) error { return f(h, instrs) }

// Recorder is an in-memory Sink keeping the latest rendering per handle and
// a count of renders.
type Recorder struct {
	Latest  map[Handle][]Instruction
	Renders int
}

func NewRecorder() *Recorder {
	return &Recorder{Latest: make(map[Handle][]Instruction)}
}

func (rec *Recorder) Render(h Handle, instrs []Instruction) error {
	rec.Latest[h] = append([]Instruction(nil), instrs...)
	rec.Renders++
	return nil
}
