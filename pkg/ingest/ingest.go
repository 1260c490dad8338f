// Package ingest records which tokens a source contains. Regions are
// segmented on a worker pool and linked in order through a BatchWriter, with
// a per-source checkpoint so an interrupted ingest resumes where it stopped.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/langparser/pkg/db"
	"github.com/japaniel/langparser/pkg/logger"
	"github.com/japaniel/langparser/pkg/reconcile"
	"github.com/japaniel/langparser/pkg/script"
	"github.com/japaniel/langparser/pkg/segment"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Ingester links the target tokens of a source's regions to the source.
type Ingester struct {
	DB         *sql.DB
	Segmenters *segment.Registry
	BatchSize  int
	// Logger is used for informational messages (e.g. resume status). nil means no logging.
	Logger logger.Logger
	// OnProgress is called periodically with the number of processed regions and total regions.
	OnProgress func(current, total int)

	// Concurrency settings
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester.
func NewIngester(conn *sql.DB, segs *segment.Registry) *Ingester {
	return &Ingester{
		DB:         conn,
		Segmenters: segs,
		BatchSize:  50,
		Workers:    4,
	}
}

// tokenCount is one distinct target token of a region.
type tokenCount struct {
	Text  string
	Count int
}

// processedRegion holds the result of segmenting a region before it is linked.
type processedRegion struct {
	Index  int
	Text   string
	Tokens []tokenCount
}

// Ingest segments regions for v and links every target token to sourceID.
// Regions before the stored checkpoint are skipped. It returns the number of
// token occurrences linked by this call.
func (ig *Ingester) Ingest(ctx context.Context, sourceID int64, v script.Variant, regions []reconcile.Region) (int, error) {
	log := logger.OrDiscard(ig.Logger).With("source", sourceID, "variant", v)

	seg, err := ig.Segmenters.For(v)
	if err != nil {
		return 0, err
	}

	startIdx, err := db.GetSourceProgress(ig.DB, sourceID)
	if err != nil {
		return 0, fmt.Errorf("read progress: %w", err)
	}
	total := len(regions)
	if startIdx >= total {
		return 0, nil
	}
	if startIdx > 0 {
		log.Info("resuming ingest", "skipped", startIdx, "total", total)
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}

	bw := NewBatchWriter(ig.DB, ig.BatchSize, 100*time.Millisecond)
	bw.SetLogger(log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var links int64
	resultCh := make(chan processedRegion, workers*2)
	doneCh := make(chan error, 1)

	wp.Start(ctx)

	go func() {
		err := ig.consume(ctx, resultCh, startIdx, total, func(item processedRegion) error {
			return bw.Submit(func(_ context.Context, tx *sql.Tx) error {
				n, err := linkRegion(tx, sourceID, string(v), item)
				if err != nil {
					return err
				}
				atomic.AddInt64(&links, int64(n))
				return nil
			})
		})
		if err != nil {
			// Unblocks workers waiting on resultCh.
			cancel()
		}
		doneCh <- err
	}()

	var submitErr error
	for i := startIdx; i < total; i++ {
		if ctx.Err() != nil {
			break
		}
		idx, text := i, regions[i].Text
		job := func(ctx context.Context) error {
			res := processedRegion{Index: idx, Text: text, Tokens: countTokens(seg, text)}
			select {
			case resultCh <- res:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrPoolClosed) {
				break
			}
			submitErr = err
			cancel()
			break
		}
	}

	// Workers are gone once Close returns, so closing resultCh cannot race a send.
	wp.Close()
	close(resultCh)
	consumerErr := <-doneCh

	closeErr := bw.Close()
	switch {
	case submitErr != nil:
		return int(atomic.LoadInt64(&links)), submitErr
	case consumerErr != nil:
		return int(atomic.LoadInt64(&links)), consumerErr
	case closeErr != nil:
		return int(atomic.LoadInt64(&links)), closeErr
	}
	return int(atomic.LoadInt64(&links)), nil
}

// consume reorders results by region index and hands contiguous runs to persist.
func (ig *Ingester) consume(ctx context.Context, resultCh <-chan processedRegion, startIdx, total int, persist func(processedRegion) error) error {
	pending := make(map[int]processedRegion)
	next := startIdx
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-resultCh:
			if !ok {
				if next < total {
					if err := ctx.Err(); err != nil {
						return err
					}
					return fmt.Errorf("ingest stopped at region %d of %d", next, total)
				}
				if ig.OnProgress != nil {
					ig.OnProgress(total, total)
				}
				return nil
			}
			pending[res.Index] = res
			for {
				item, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := persist(item); err != nil {
					return err
				}
				next++
				if ig.OnProgress != nil && ig.BatchSize > 0 && next%ig.BatchSize == 0 {
					ig.OnProgress(next, total)
				}
			}
		}
	}
}

// linkRegion links every token of a region and advances the checkpoint past it.
func linkRegion(tx db.DBExecutor, sourceID int64, variant string, item processedRegion) (int, error) {
	links := 0
	for _, tc := range item.Tokens {
		tokenID, err := db.CreateOrGetToken(tx, variant, tc.Text)
		if err != nil {
			return 0, fmt.Errorf("failed to persist token %s: %w", tc.Text, err)
		}
		if err := db.LinkTokenToSource(tx, tokenID, sourceID, item.Text, tc.Count); err != nil {
			return 0, fmt.Errorf("failed to link token %d: %w", tokenID, err)
		}
		links += tc.Count
	}
	if err := db.UpdateSourceProgress(tx, sourceID, item.Index+1); err != nil {
		return 0, fmt.Errorf("failed to save progress: %w", err)
	}
	return links, nil
}

// countTokens returns the distinct NFC target tokens of text in first-seen order.
func countTokens(seg segment.Segmenter, text string) []tokenCount {
	var out []tokenCount
	index := make(map[string]int)
	for _, tok := range segment.Tokenize(seg, text) {
		if !tok.Target {
			continue
		}
		k := norm.NFC.String(tok.Text)
		if i, ok := index[k]; ok {
			out[i].Count++
			continue
		}
		index[k] = len(out)
		out = append(out, tokenCount{Text: k, Count: 1})
	}
	return out
}
