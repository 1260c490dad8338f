package ingest

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/japaniel/langparser/pkg/db"
	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/logger"
)

// Snapshotter is the part of knowledge.Base the Persister needs.
type Snapshotter interface {
	Subscribe(knowledge.Listener)
	Export() ([]byte, error)
	Import([]byte) error
}

// Persister mirrors knowledgebase changes into the tokens table. Single
// entries are upserted as they change; a whole-snapshot import rewrites the
// table from a fresh export.
type Persister struct {
	conn *sql.DB
	kb   Snapshotter
	log  logger.Logger

	mu    sync.Mutex
	err   error
	saved int
}

// NewPersister subscribes to kb and returns the Persister writing to conn.
func NewPersister(conn *sql.DB, kb Snapshotter, l logger.Logger) *Persister {
	p := &Persister{conn: conn, kb: kb, log: logger.OrDiscard(l)}
	kb.Subscribe(p.observe)
	return p
}

func (p *Persister) observe(c knowledge.Change) {
	var err error
	switch c.Kind {
	case knowledge.Created, knowledge.Updated:
		err = p.saveEntry(c)
	case knowledge.Replaced:
		err = p.saveAll()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.log.Error("persist knowledgebase change", "variant", c.Variant, "token", c.Text, "err", err)
		if p.err == nil {
			p.err = err
		}
		return
	}
	p.saved++
}

func (p *Persister) saveEntry(c knowledge.Change) error {
	entry, err := knowledge.EncodeEntry(c.Variant, c.State)
	if err != nil {
		return err
	}
	_, err = db.UpsertToken(p.conn, string(c.Variant), c.Text, entry)
	return err
}

func (p *Persister) saveAll() error {
	snap, err := p.kb.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	tx, err := p.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := db.SaveSnapshot(tx, snap); err != nil {
		return err
	}
	return tx.Commit()
}

// Err returns the first write failure, if any.
func (p *Persister) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Saved returns how many changes were written successfully.
func (p *Persister) Saved() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved
}

// Hydrate loads the stored knowledgebase into kb. An empty database yields
// an empty knowledgebase.
func Hydrate(conn *sql.DB, kb Snapshotter) error {
	snap, err := db.LoadSnapshot(conn)
	if err != nil {
		return err
	}
	return kb.Import(snap)
}
