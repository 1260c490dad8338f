package knowledge

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/langparser/pkg/logger"
	"github.com/japaniel/langparser/pkg/script"
)

// Pronouncer derives a word's reading. segment.Segmenter implements it.
type Pronouncer interface {
	Pronounce(word string) (string, bool)
}

// ChangeKind tells listeners how the knowledgebase changed.
type ChangeKind int

const (
	Created ChangeKind = iota
	Updated
	// Replaced follows a successful Import; Variant and Text are empty.
	Replaced
)

// Change describes one mutation.
type Change struct {
	Kind    ChangeKind
	Variant script.Variant
	Text    string
	State   TokenState
}

// Listener observes mutations after they are applied. It runs synchronously
// on the mutating goroutine and must not call back into mutating methods.
type Listener func(Change)

// record holds one stored entry. Imported entries stay raw until first read.
type record struct {
	raw    []byte
	parsed bool
	valid  bool
	state  TokenState
}

// Base is the knowledgebase. The zero value is not usable; call New.
// Mutations only happen through GetOrCreate, Write, Cycle, MarkKnown and Import.
type Base struct {
	mu          sync.RWMutex
	tokens      map[string]map[string]*record
	userStats   []byte
	generation  uint64
	pronouncers map[script.Variant]Pronouncer
	listeners   []Listener
	log         logger.Logger
}

type Option func(*Base)

// WithLogger sets the logger used for rejected writes and malformed entries.
func WithLogger(l logger.Logger) Option {
	return func(b *Base) { b.log = l }
}

// WithPronouncer registers the reading source for a variant.
func WithPronouncer(v script.Variant, p Pronouncer) Option {
	return func(b *Base) { b.pronouncers[v] = p }
}

// New returns an empty knowledgebase.
func New(opts ...Option) *Base {
	b := &Base{
		tokens:      make(map[string]map[string]*record),
		userStats:   []byte("{}"),
		pronouncers: make(map[script.Variant]Pronouncer),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = logger.OrDiscard(b.log)
	return b
}

// Subscribe registers l for every future change.
func (b *Base) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Generation increases on every Import. Renderings made under an older
// generation must be treated as stale.
func (b *Base) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

func key(text string) string {
	return norm.NFC.String(text)
}

// Read returns the stored state of (v, text). Entries that do not have a
// numeric memoryStatus and a string notes field read as absent.
func (b *Base) Read(v script.Variant, text string) (TokenState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(v, key(text))
}

func (b *Base) readLocked(v script.Variant, k string) (TokenState, bool) {
	rec, ok := b.tokens[string(v)][k]
	if !ok {
		return TokenState{}, false
	}
	if !rec.parsed {
		rec.state, rec.valid = b.decodeEntry(v, k, rec.raw)
		rec.parsed = true
	}
	return rec.state, rec.valid
}

// GetOrCreate returns the state of (v, text), creating and storing the
// default state on first sight.
func (b *Base) GetOrCreate(v script.Variant, text string) (TokenState, error) {
	if err := b.checkKey(v, text); err != nil {
		return TokenState{}, err
	}
	k := key(text)

	b.mu.Lock()
	if s, ok := b.readLocked(v, k); ok {
		b.mu.Unlock()
		return s, nil
	}
	s := b.defaultState(v, k)
	b.putLocked(v, k, s)
	listeners := b.listeners
	b.mu.Unlock()

	b.log.Debug("created token", "variant", v, "token", k)
	notify(listeners, Change{Kind: Created, Variant: v, Text: k, State: s})
	return s, nil
}

// Write replaces the state of (v, text). A malformed state is rejected with
// ErrMalformedTokenState and nothing is written.
func (b *Base) Write(v script.Variant, text string, s TokenState) error {
	if err := b.checkKey(v, text); err != nil {
		return err
	}
	if err := validateState(v, s); err != nil {
		b.log.Warn("rejected token write", "variant", v, "token", text, "err", err)
		return err
	}
	k := key(text)

	b.mu.Lock()
	_, existed := b.readLocked(v, k)
	b.putLocked(v, k, s)
	listeners := b.listeners
	b.mu.Unlock()

	kind := Updated
	if !existed {
		kind = Created
	}
	notify(listeners, Change{Kind: kind, Variant: v, Text: k, State: s})
	return nil
}

// Cycle advances the familiarity of (v, text) by one level, wrapping 4→0.
func (b *Base) Cycle(v script.Variant, text string) (TokenState, error) {
	s, err := b.GetOrCreate(v, text)
	if err != nil {
		return TokenState{}, err
	}
	s.Familiarity = NextFamiliarity(s.Familiarity)
	if err := b.Write(v, text, s); err != nil {
		return TokenState{}, err
	}
	return s, nil
}

// MarkKnown sets every listed token currently at familiarity 0 to the
// maximum. Unknown and already progressed tokens are untouched. It returns
// the number of tokens changed.
func (b *Base) MarkKnown(v script.Variant, texts []string) (int, error) {
	if _, err := script.ClassifierFor(v); err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(texts))
	changed := 0
	for _, text := range texts {
		k := key(text)
		if seen[k] {
			continue
		}
		seen[k] = true
		s, ok := b.Read(v, k)
		if !ok || s.Familiarity != MinFamiliarity {
			continue
		}
		s.Familiarity = MaxFamiliarity
		if err := b.Write(v, k, s); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// Stats counts familiarity levels over every known token of v (Full) and,
// separately, over the distinct visible tokens (Page).
func (b *Base) Stats(v script.Variant, visible []string) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var st Stats
	for k := range b.tokens[string(v)] {
		if s, ok := b.readLocked(v, k); ok {
			st.Full[s.Familiarity]++
		}
	}
	seen := make(map[string]bool, len(visible))
	for _, text := range visible {
		k := key(text)
		if seen[k] {
			continue
		}
		seen[k] = true
		if s, ok := b.readLocked(v, k); ok {
			st.Page[s.Familiarity]++
		}
	}
	return st
}

// Tokens returns the readable entries of v keyed by word.
func (b *Base) Tokens(v script.Variant) map[string]TokenState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]TokenState, len(b.tokens[string(v)]))
	for k := range b.tokens[string(v)] {
		if s, ok := b.readLocked(v, k); ok {
			out[k] = s
		}
	}
	return out
}

// Words returns the readable words of v in sorted order.
func (b *Base) Words(v script.Variant) []string {
	tokens := b.Tokens(v)
	words := make([]string, 0, len(tokens))
	for w := range tokens {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

func (b *Base) checkKey(v script.Variant, text string) error {
	if _, err := script.ClassifierFor(v); err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("%w: empty token text", ErrMalformedTokenState)
	}
	return nil
}

func (b *Base) defaultState(v script.Variant, k string) TokenState {
	s := TokenState{Familiarity: MinFamiliarity}
	if readingKey(v) != "" {
		s.Pronunciation = b.pronounce(v, k)
	}
	return s
}

// pronounce falls back to one placeholder per character when v has no reading source.
func (b *Base) pronounce(v script.Variant, k string) string {
	if p, ok := b.pronouncers[v]; ok {
		if reading, ok := p.Pronounce(k); ok && reading != "" {
			return reading
		}
	}
	return placeholderReading(k)
}

func (b *Base) putLocked(v script.Variant, k string, s TokenState) {
	bucket, ok := b.tokens[string(v)]
	if !ok {
		bucket = make(map[string]*record)
		b.tokens[string(v)] = bucket
	}
	bucket[k] = &record{parsed: true, valid: true, state: s}
}

func notify(listeners []Listener, c Change) {
	for _, l := range listeners {
		l(c)
	}
}
