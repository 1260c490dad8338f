// Package langparser wires the segmenters, the knowledgebase, the
// reconciler and the word editor into the command surface a control layer
// drives: parse, mark all known, stats, snapshot load and export.
package langparser

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/japaniel/langparser/pkg/db"
	"github.com/japaniel/langparser/pkg/ingest"
	"github.com/japaniel/langparser/pkg/knowledge"
	"github.com/japaniel/langparser/pkg/logger"
	"github.com/japaniel/langparser/pkg/reconcile"
	"github.com/japaniel/langparser/pkg/script"
	"github.com/japaniel/langparser/pkg/segment"
	"github.com/japaniel/langparser/pkg/source"
	"github.com/japaniel/langparser/pkg/tooltip"
)

// Version returns the current version of the package.
func Version() string { return "0.2.0" }

// Engine owns one knowledgebase and the annotations rendered from it.
type Engine struct {
	kb       *knowledge.Base
	segs     *segment.Registry
	rec      *reconcile.Reconciler
	editor   *tooltip.Editor
	log      logger.Logger
	conn     *sql.DB
	persist  *ingest.Persister
	ingester *ingest.Ingester
}

type options struct {
	log      logger.Logger
	sink     reconcile.Sink
	segs     *segment.Registry
	conn     *sql.DB
	readOnly bool
	workers  int
	batch    int
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSink sets where render instructions go. The default discards them.
func WithSink(s reconcile.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithSegmenters replaces the builtin segmenters.
func WithSegmenters(r *segment.Registry) Option {
	return func(o *options) { o.segs = r }
}

// WithStore makes the knowledgebase durable in conn: it is loaded on New,
// every change is written through, and ingested documents are recorded as
// sources.
func WithStore(conn *sql.DB) Option {
	return func(o *options) {
		o.conn = conn
		o.readOnly = false
	}
}

// WithReadOnlyStore loads the knowledgebase from conn but never writes to
// it: changes stay in memory and documents are not recorded.
func WithReadOnlyStore(conn *sql.DB) Option {
	return func(o *options) {
		o.conn = conn
		o.readOnly = true
	}
}

// WithIngest sets the worker count and batch size used to record sources.
func WithIngest(workers, batchSize int) Option {
	return func(o *options) {
		o.workers = workers
		o.batch = batchSize
	}
}

// New builds an engine. Without WithSegmenters the embedded dictionaries are used.
func New(opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	log := logger.OrDiscard(o.log)

	segs := o.segs
	if segs == nil {
		var err error
		if segs, err = segment.Builtin(); err != nil {
			return nil, fmt.Errorf("load builtin segmenters: %w", err)
		}
	}

	kbOpts := []knowledge.Option{knowledge.WithLogger(log.With("component", "knowledge"))}
	for _, v := range segs.Variants() {
		seg, _ := segs.For(v)
		kbOpts = append(kbOpts, knowledge.WithPronouncer(v, seg))
	}
	kb := knowledge.New(kbOpts...)

	e := &Engine{kb: kb, segs: segs, log: log, conn: o.conn}
	e.rec = reconcile.New(kb, segs, o.sink, reconcile.WithLogger(log.With("component", "reconcile")))
	e.editor = tooltip.New(kb, e.rec, tooltip.WithLogger(log.With("component", "tooltip")))

	if o.conn != nil {
		if err := ingest.Hydrate(o.conn, kb); err != nil {
			return nil, fmt.Errorf("load knowledgebase: %w", err)
		}
	}
	if o.conn != nil && !o.readOnly {
		e.persist = ingest.NewPersister(o.conn, kb, log.With("component", "persist"))
		e.ingester = ingest.NewIngester(o.conn, segs)
		e.ingester.Logger = log.With("component", "ingest")
		if o.workers > 0 {
			e.ingester.Workers = o.workers
		}
		if o.batch > 0 {
			e.ingester.BatchSize = o.batch
		}
	}
	return e, nil
}

// Parse annotates regions for v. It is safe to call again with the same
// regions; already annotated content is only refreshed.
func (e *Engine) Parse(v script.Variant, regions []reconcile.Region) (reconcile.Report, error) {
	rep, err := e.rec.Annotate(v, regions)
	if err != nil {
		e.log.Warn("parse failed", "variant", v, "err", err)
		return rep, err
	}
	e.log.Debug("parsed regions", "variant", v, "annotated", rep.Annotated, "refreshed", rep.Refreshed, "skipped", rep.Skipped)
	return rep, nil
}

// ParseDocument annotates doc and, with a writable store, records which tokens it
// contains. It returns the number of token occurrences recorded.
func (e *Engine) ParseDocument(ctx context.Context, v script.Variant, doc *source.Document) (reconcile.Report, int, error) {
	rep, err := e.Parse(v, doc.Regions)
	if err != nil || e.ingester == nil {
		return rep, 0, err
	}
	sourceID, err := db.CreateOrGetSource(e.conn, doc.Kind, doc.Title, doc.Byline, doc.SiteName, doc.URL, "")
	if err != nil {
		return rep, 0, fmt.Errorf("record source: %w", err)
	}
	n, err := e.ingester.Ingest(ctx, sourceID, v, doc.Regions)
	if err != nil {
		return rep, n, fmt.Errorf("record occurrences: %w", err)
	}
	return rep, n, nil
}

// MarkAllKnown raises every visible token of v at familiarity 0 to 4 and
// refreshes the annotations showing them.
func (e *Engine) MarkAllKnown(v script.Variant) (int, error) {
	n, err := e.kb.MarkKnown(v, e.rec.Visible(v))
	if err != nil {
		return n, err
	}
	if _, err := e.rec.RefreshAll(v); err != nil {
		return n, err
	}
	e.log.Info("marked visible words known", "variant", v, "count", n)
	return n, nil
}

// GetStats returns the familiarity histograms of v over every known token
// and over the distinct tokens currently annotated.
func (e *Engine) GetStats(v script.Variant) (knowledge.Stats, error) {
	if _, err := e.segs.For(v); err != nil {
		return knowledge.Stats{}, err
	}
	return e.kb.Stats(v, e.rec.Visible(v)), nil
}

// LoadSnapshot replaces the knowledgebase with data and reconciles every
// annotation against it. On error nothing changes.
func (e *Engine) LoadSnapshot(data []byte) error {
	if err := e.kb.Import(data); err != nil {
		return err
	}
	e.rec.MarkStale()
	for _, v := range e.segs.Variants() {
		if _, err := e.rec.RefreshAll(v); err != nil {
			return fmt.Errorf("refresh %s: %w", v, err)
		}
	}
	return nil
}

// ExportSnapshot serializes the knowledgebase.
func (e *Engine) ExportSnapshot() ([]byte, error) {
	return e.kb.Export()
}

// Edit returns the single word editor.
func (e *Engine) Edit() *tooltip.Editor { return e.editor }

// Knowledge returns the knowledgebase.
func (e *Engine) Knowledge() *knowledge.Base { return e.kb }

// Reconciler returns the reconciler.
func (e *Engine) Reconciler() *reconcile.Reconciler { return e.rec }

// Segmenters returns the segmenter registry.
func (e *Engine) Segmenters() *segment.Registry { return e.segs }

// Close flushes the open editor session and reports the first failed
// write-through, if any. It does not close the store.
func (e *Engine) Close() error {
	if err := e.editor.Close(); err != nil {
		return err
	}
	if e.persist != nil {
		return e.persist.Err()
	}
	return nil
}
