// Package reconcile keeps rendered annotations consistent with the
// knowledgebase. Each host region is a scope that moves through
// Unannotated → Annotated → Stale → Annotated; annotated content is never
// segmented twice and is only re-rendered when its resolved states change.
package reconcile

import (
	"fmt"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/logger"
	"github.com/japaniel/langparser/pkg/script"
	"github.com/japaniel/langparser/pkg/segment"
)

// Handle identifies a host text region. The host keeps handles stable for
// as long as the region's content is unchanged.
type Handle string

// Region is one plain-text region supplied by the host.
type Region struct {
	Handle Handle
	Text   string
}

// State is the annotation state of a scope.
type State int

const (
	Unannotated State = iota
	Annotated
	Stale
)

func (s State) String() string {
	switch s {
	case Unannotated:
		return "unannotated"
	case Annotated:
		return "annotated"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Span is one resolved token together with the state it was rendered with.
// Inert spans carry a zero State.
type Span struct {
	Token segment.Token
	State knowledge.TokenState
}

// Knowledge is the subset of knowledge.Base the reconciler reads through.
type Knowledge interface {
	Read(v script.Variant, text string) (knowledge.TokenState, bool)
	GetOrCreate(v script.Variant, text string) (knowledge.TokenState, error)
	Generation() uint64
}

type scope struct {
	handle     Handle
	text       string
	variant    script.Variant
	state      State
	generation uint64
	spans      []Span
}

// Scope is a read-only view of a reconciled region.
type Scope struct {
	Handle  Handle
	Text    string
	Variant script.Variant
	State   State
	Spans   []Span
}

// Report summarizes one Annotate pass.
type Report struct {
	// Annotated counts regions segmented for the first time.
	Annotated int
	// Refreshed counts already annotated regions that were re-rendered.
	Refreshed int
	// Unchanged counts already annotated regions that needed no work.
	Unchanged int
	// Skipped counts new regions without any target-script character.
	Skipped int
	// Foreign counts regions annotated for another variant.
	Foreign int
}

// Reconciler owns the scopes of one host document.
type Reconciler struct {
	mu     sync.Mutex
	kb     Knowledge
	segs   *segment.Registry
	sink   Sink
	log    logger.Logger
	scopes map[Handle]*scope
	order  []Handle
}

type Option func(*Reconciler)

func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// New returns a reconciler rendering into sink. A nil sink discards output.
// The sink is called with the reconciler's lock held and must not call back
// into it.
func New(kb Knowledge, segs *segment.Registry, sink Sink, opts ...Option) *Reconciler {
	r := &Reconciler{
		kb:     kb,
		segs:   segs,
		sink:   sink,
		scopes: make(map[Handle]*scope),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sink == nil {
		r.sink = SinkFunc(func(Handle, []Instruction) error { return nil })
	}
	r.log = logger.OrDiscard(r.log)
	return r
}

// Annotate reconciles regions for variant v. New regions containing target
// script are segmented and resolved; regions already annotated for v are
// only refreshed; regions annotated for another variant are left alone. A
// known handle whose text changed is treated as replaced content.
func (r *Reconciler) Annotate(v script.Variant, regions []Region) (Report, error) {
	seg, err := r.segs.For(v)
	if err != nil {
		r.log.Warn("annotate skipped", "variant", v, "err", err)
		return Report{}, err
	}
	classify := seg.Classifier()

	r.mu.Lock()
	defer r.mu.Unlock()

	var rep Report
	for _, reg := range regions {
		if sc, ok := r.scopes[reg.Handle]; ok {
			if sc.text == reg.Text {
				if sc.variant != v {
					rep.Foreign++
					continue
				}
				changed, err := r.refreshLocked(sc)
				if err != nil {
					return rep, err
				}
				if changed {
					rep.Refreshed++
				} else {
					rep.Unchanged++
				}
				continue
			}
			r.log.Debug("region content replaced", "handle", reg.Handle)
			r.dropLocked(reg.Handle)
		}

		if !script.ContainsTarget(reg.Text, classify) {
			rep.Skipped++
			continue
		}
		if err := r.annotateLocked(seg, reg); err != nil {
			return rep, err
		}
		rep.Annotated++
	}
	r.log.Debug("annotate finished", "variant", v, "annotated", rep.Annotated,
		"refreshed", rep.Refreshed, "skipped", rep.Skipped)
	return rep, nil
}

func (r *Reconciler) annotateLocked(seg segment.Segmenter, reg Region) error {
	gen := r.kb.Generation()
	tokens := segment.Tokenize(seg, reg.Text)
	spans := make([]Span, len(tokens))
	for i, tok := range tokens {
		spans[i].Token = tok
		if !tok.Target {
			continue
		}
		st, err := r.kb.GetOrCreate(tok.Variant, tok.Text)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", tok.Text, err)
		}
		spans[i].State = st
	}

	sc := &scope{
		handle:     reg.Handle,
		text:       reg.Text,
		variant:    seg.Variant(),
		state:      Annotated,
		generation: gen,
		spans:      spans,
	}
	r.scopes[reg.Handle] = sc
	r.order = append(r.order, reg.Handle)
	return r.renderLocked(sc)
}

// refreshLocked re-reads every word span of sc and re-renders sc when any
// resolved state differs from the rendered one.
func (r *Reconciler) refreshLocked(sc *scope) (bool, error) {
	gen := r.kb.Generation()
	if gen != sc.generation {
		sc.state = Stale
	}

	changed := false
	for i := range sc.spans {
		sp := &sc.spans[i]
		if !sp.Token.Target {
			continue
		}
		cur, ok := r.kb.Read(sp.Token.Variant, sp.Token.Text)
		if !ok {
			var err error
			if cur, err = r.kb.GetOrCreate(sp.Token.Variant, sp.Token.Text); err != nil {
				return false, fmt.Errorf("resolve %q: %w", sp.Token.Text, err)
			}
		}
		if cur != sp.State {
			sc.state = Stale
			sp.State = cur
			changed = true
		}
	}
	sc.generation = gen

	if changed {
		if err := r.renderLocked(sc); err != nil {
			return false, err
		}
	}
	sc.state = Annotated
	return changed, nil
}

func (r *Reconciler) renderLocked(sc *scope) error {
	instrs := make([]Instruction, len(sc.spans))
	for i, sp := range sc.spans {
		instrs[i] = sp.Instruction()
	}
	if err := r.sink.Render(sc.handle, instrs); err != nil {
		return fmt.Errorf("render %s: %w", sc.handle, err)
	}
	return nil
}

// Refresh re-syncs every scope of v that shows text. It returns the number
// of scopes re-rendered.
func (r *Reconciler) Refresh(v script.Variant, text string) (int, error) {
	if _, err := script.ClassifierFor(v); err != nil {
		return 0, err
	}
	k := norm.NFC.String(text)
	return r.refreshWhere(v, func(sc *scope) bool {
		for _, sp := range sc.spans {
			if sp.Token.Target && norm.NFC.String(sp.Token.Text) == k {
				return true
			}
		}
		return false
	})
}

// RefreshAll re-syncs every scope annotated for v.
func (r *Reconciler) RefreshAll(v script.Variant) (int, error) {
	if _, err := script.ClassifierFor(v); err != nil {
		return 0, err
	}
	return r.refreshWhere(v, func(*scope) bool { return true })
}

func (r *Reconciler) refreshWhere(v script.Variant, match func(*scope) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, h := range r.order {
		sc := r.scopes[h]
		if sc.variant != v || !match(sc) {
			continue
		}
		changed, err := r.refreshLocked(sc)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// MarkStale flags every scope for re-validation on its next refresh.
func (r *Reconciler) MarkStale() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sc := range r.scopes {
		sc.state = Stale
	}
}

// Invalidate forgets the scope of h after the host deleted or replaced its
// content. The knowledgebase is not touched.
func (r *Reconciler) Invalidate(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropLocked(h)
}

func (r *Reconciler) dropLocked(h Handle) bool {
	if _, ok := r.scopes[h]; !ok {
		return false
	}
	delete(r.scopes, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Visible lists the word texts currently rendered for v, in document order,
// with repetitions.
func (r *Reconciler) Visible(v script.Variant) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, h := range r.order {
		sc := r.scopes[h]
		if sc.variant != v {
			continue
		}
		for _, sp := range sc.spans {
			if sp.Token.Target {
				out = append(out, sp.Token.Text)
			}
		}
	}
	return out
}

// Scopes returns a copy of every scope in annotation order.
func (r *Reconciler) Scopes() []Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Scope, 0, len(r.order))
	for _, h := range r.order {
		sc := r.scopes[h]
		out = append(out, Scope{
			Handle:  sc.handle,
			Text:    sc.text,
			Variant: sc.variant,
			State:   sc.state,
			Spans:   append([]Span(nil), sc.spans...),
		})
	}
	return out
}

// Lookup returns the scope of h.
func (r *Reconciler) Lookup(h Handle) (Scope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.scopes[h]
	if !ok {
		return Scope{}, false
	}
	return Scope{
		Handle:  sc.handle,
		Text:    sc.text,
		Variant: sc.variant,
		State:   sc.state,
		Spans:   append([]Span(nil), sc.spans...),
	}, true
}
