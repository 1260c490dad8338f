// Package tooltip coordinates the single word editor: at most one token is
// open at a time, and its edits reach the knowledgebase once, when it closes.
package tooltip

import (
	"errors"
	"fmt"
	"sync"

	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/logger"
	"github.com/japaniel/langparser/pkg/script"
)

// ErrClosed is returned by Session methods after the session was flushed and closed.
var ErrClosed = errors.New("tooltip session closed")

// Knowledge is the subset of knowledge.Base the editor needs.
type Knowledge interface {
	GetOrCreate(v script.Variant, text string) (knowledge.TokenState, error)
	Write(v script.Variant, text string, s knowledge.TokenState) error
}

// Refresher re-renders every span showing (v, text).
type Refresher interface {
	Refresh(v script.Variant, text string) (int, error)
}

// Editor is the single-slot coordinator.
type Editor struct {
	mu      sync.Mutex
	kb      Knowledge
	refresh Refresher
	log     logger.Logger
	open    *Session
}

type Option func(*Editor)

func WithLogger(l logger.Logger) Option {
	return func(e *Editor) { e.log = l }
}

// New returns an editor writing to kb. refresh may be nil.
func New(kb Knowledge, refresh Refresher, opts ...Option) *Editor {
	e := &Editor{kb: kb, refresh: refresh}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrDiscard(e.log)
	return e
}

// Open closes the current session, flushing its edits, and opens (v, text).
// If the edits cannot be saved the current session stays open and nothing
// new is opened.
func (e *Editor) Open(v script.Variant, text string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.closeLocked(); err != nil {
		return nil, err
	}
	st, err := e.kb.GetOrCreate(v, text)
	if err != nil {
		return nil, err
	}
	e.open = &Session{editor: e, variant: v, text: text, saved: st, edit: st}
	e.log.Debug("tooltip opened", "variant", v, "token", text)
	return e.open, nil
}

// Close flushes and closes the open session. It is a no-op when nothing is
// open. A rejected write leaves the session open with its edits.
func (e *Editor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

// Current returns the open session, if any.
func (e *Editor) Current() (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open, e.open != nil
}

func (e *Editor) closeLocked() error {
	s := e.open
	if s == nil {
		return nil
	}
	err := e.flushLocked(s)
	if err != nil && s.edit != s.saved {
		// The write was rejected: the edits stay in the open session.
		return err
	}
	e.open = nil
	s.closed = true
	return err
}

// flushLocked writes s when it has unsaved edits and refreshes every
// occurrence of its word.
func (e *Editor) flushLocked(s *Session) error {
	if s.edit == s.saved {
		return nil
	}
	if err := e.kb.Write(s.variant, s.text, s.edit); err != nil {
		e.log.Warn("tooltip edit rejected", "variant", s.variant, "token", s.text, "err", err)
		return fmt.Errorf("save %q: %w", s.text, err)
	}
	s.saved = s.edit
	if e.refresh == nil {
		return nil
	}
	n, err := e.refresh.Refresh(s.variant, s.text)
	if err != nil {
		return fmt.Errorf("refresh %q: %w", s.text, err)
	}
	e.log.Debug("tooltip flushed", "variant", s.variant, "token", s.text, "spans", n)
	return nil
}

// Session holds the in-progress edits of one open token.
type Session struct {
	editor  *Editor
	variant script.Variant
	text    string
	saved   knowledge.TokenState
	edit    knowledge.TokenState
	closed  bool
}

func (s *Session) Variant() script.Variant { return s.variant }
func (s *Session) Text() string            { return s.text }

// State returns the edited, possibly unsaved, state.
func (s *Session) State() knowledge.TokenState {
	s.editor.mu.Lock()
	defer s.editor.mu.Unlock()
	return s.edit
}

// Dirty reports whether the session has unsaved edits.
func (s *Session) Dirty() bool {
	s.editor.mu.Lock()
	defer s.editor.mu.Unlock()
	return s.edit != s.saved
}

// Cycle advances the edited familiarity by one level.
func (s *Session) Cycle() (int, error) {
	s.editor.mu.Lock()
	defer s.editor.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.edit.Familiarity = knowledge.NextFamiliarity(s.edit.Familiarity)
	return s.edit.Familiarity, nil
}

func (s *Session) SetFamiliarity(f int) error {
	s.editor.mu.Lock()
	defer s.editor.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if f < knowledge.MinFamiliarity || f > knowledge.MaxFamiliarity {
		return fmt.Errorf("%w: familiarity %d out of range", knowledge.ErrMalformedTokenState, f)
	}
	s.edit.Familiarity = f
	return nil
}

func (s *Session) SetNotes(notes string) error {
	s.editor.mu.Lock()
	defer s.editor.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.edit.Notes = notes
	return nil
}

// Save flushes pending edits without closing the session.
func (s *Session) Save() error {
	s.editor.mu.Lock()
	defer s.editor.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.editor.flushLocked(s)
}
