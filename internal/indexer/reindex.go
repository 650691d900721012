package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/pkg/types"
)

// ErrReindexInProgress is returned when a backfill is already running
var ErrReindexInProgress = errors.New("reindex already in progress")

// ReindexConfig contains configuration for a backfill run
type ReindexConfig struct {
	Workers   int // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize int // Entities handed to a worker at a time (default: 50)
}

// Statistics contains statistics about a backfill run
type Statistics struct {
	EventsIndexed int
	VenuesIndexed int
	Failed        int
	Duration      time.Duration
	ErrorMessages []string
}

type reindexTarget struct {
	kind types.EntityKind
	id   int64
}

// Reindex re-derives every event and venue representation from its source
// row. Each entity gets its own transaction, so a failure leaves that entity
// exactly as it was and the run continues. Incremental maintenance through
// SaveEvent/SaveVenue remains the primary path; this only repairs or backfills.
func (w *Writer) Reindex(ctx context.Context, config *ReindexConfig) (*Statistics, error) {
	if !w.reindexLock.TryAcquire() {
		return nil, ErrReindexInProgress
	}
	defer w.reindexLock.Release()

	if config == nil {
		config = &ReindexConfig{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	startTime := time.Now()
	targets, err := w.reindexTargets(ctx)
	if err != nil {
		return nil, err
	}

	var (
		events, venues, failed int32
		mu                     sync.Mutex
		stats                  = &Statistics{ErrorMessages: make([]string, 0)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < len(targets); i += batchSize {
		end := i + batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[i:end]

		g.Go(func() error {
			for _, target := range batch {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := w.reindexOne(gctx, target); err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					atomic.AddInt32(&failed, 1)
					mu.Lock()
					stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s %d: %v", target.kind, target.id, err))
					mu.Unlock()
					w.logger.WarnContext(gctx, "reindex failed", "kind", target.kind, "id", target.id, "error", err)
					continue
				}
				if target.kind == types.KindEvent {
					atomic.AddInt32(&events, 1)
				} else {
					atomic.AddInt32(&venues, 1)
				}
			}
			return nil
		})
	}

	waitErr := g.Wait()

	stats.EventsIndexed = int(events)
	stats.VenuesIndexed = int(venues)
	stats.Failed = int(failed)
	stats.Duration = time.Since(startTime)

	if events+venues > 0 {
		w.fireHooks()
	}
	if waitErr != nil {
		return stats, waitErr
	}

	w.logger.InfoContext(ctx, "reindex complete",
		"events", stats.EventsIndexed, "venues", stats.VenuesIndexed,
		"failed", stats.Failed, "duration", stats.Duration)
	return stats, nil
}

// reindexTargets lists every venue and event id
func (w *Writer) reindexTargets(ctx context.Context) ([]reindexTarget, error) {
	venueIDs, err := w.store.ListVenueIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	eventIDs, err := w.store.ListEventIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	targets := make([]reindexTarget, 0, len(venueIDs)+len(eventIDs))
	for _, id := range venueIDs {
		targets = append(targets, reindexTarget{kind: types.KindVenue, id: id})
	}
	for _, id := range eventIDs {
		targets = append(targets, reindexTarget{kind: types.KindEvent, id: id})
	}
	return targets, nil
}

// reindexOne rebuilds one entity's derived rows in its own transaction
func (w *Writer) reindexOne(ctx context.Context, target reindexTarget) error {
	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// An empty field set re-derives everything
	err = w.maintainer.OnWrite(ctx, tx, Change{Kind: target.kind, ID: target.id})
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between listing and processing
		return nil
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}
