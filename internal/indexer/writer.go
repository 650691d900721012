package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwysong85/whenr-database/internal/metrics"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/pkg/types"
)

// Writer is the host write path. Each call is one transaction: source row
// upsert, OnWrite maintenance, commit, then commit hooks.
type Writer struct {
	store      storage.Storage
	maintainer *Maintainer
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu    sync.RWMutex
	hooks []func()

	reindexLock IndexLock
}

// Option configures a Writer
type Option func(*Writer)

// WithLogger sets the logger used for write diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter creates a Writer over store
func NewWriter(store storage.Storage, maintainer *Maintainer, opts ...Option) *Writer {
	w := &Writer{
		store:      store,
		maintainer: maintainer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnCommit registers fn to run after every successful commit
func (w *Writer) OnCommit(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

func (w *Writer) fireHooks() {
	w.mu.RLock()
	hooks := w.hooks
	w.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// write runs fn in a transaction and commits it. Hooks fire only after commit.
func (w *Writer) write(ctx context.Context, kind types.EntityKind, op string, fn func(tx storage.Tx) error) (err error) {
	defer func() {
		w.metrics.RecordWrite(string(kind), op, err)
	}()

	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		w.logger.DebugContext(ctx, "write rejected", "kind", kind, "op", op, "error", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	w.fireHooks()
	return nil
}

// SaveEvent creates or updates an event and its text representation
func (w *Writer) SaveEvent(ctx context.Context, event *types.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidEntity, err)
	}
	return w.write(ctx, types.KindEvent, "save", func(tx storage.Tx) error {
		changed, existed, err := eventChanges(ctx, tx, event)
		if err != nil {
			return err
		}
		if err := tx.UpsertEvent(ctx, event); err != nil {
			return err
		}
		if existed && len(changed) == 0 {
			return nil
		}
		return w.maintainer.OnWrite(ctx, tx, Change{Kind: types.KindEvent, ID: event.ID, ChangedFields: changed})
	})
}

// SaveVenue creates or updates a venue and its text and spatial representations.
// Out-of-range coordinates reject the whole write.
func (w *Writer) SaveVenue(ctx context.Context, venue *types.Venue) error {
	if err := venue.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidEntity, err)
	}
	return w.write(ctx, types.KindVenue, "save", func(tx storage.Tx) error {
		changed, existed, err := venueChanges(ctx, tx, venue)
		if err != nil {
			return err
		}
		if err := tx.UpsertVenue(ctx, venue); err != nil {
			return err
		}
		if !existed || len(changed) > 0 {
			if err := w.maintainer.OnWrite(ctx, tx, Change{Kind: types.KindVenue, ID: venue.ID, ChangedFields: changed}); err != nil {
				return err
			}
		}
		stored, err := tx.GetVenue(ctx, venue.ID)
		if err != nil {
			return err
		}
		venue.Geo = stored.Geo
		return nil
	})
}

// SaveOffer creates or updates an offer. Offers have no derived
// representation but still invalidate cached price-filtered results.
func (w *Writer) SaveOffer(ctx context.Context, offer *types.Offer) error {
	if err := offer.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidEntity, err)
	}
	return w.write(ctx, types.KindOffer, "save", func(tx storage.Tx) error {
		return tx.UpsertOffer(ctx, offer)
	})
}

// DeleteEvent removes an event, its offers and its text representation
func (w *Writer) DeleteEvent(ctx context.Context, eventID int64) error {
	return w.write(ctx, types.KindEvent, "delete", func(tx storage.Tx) error {
		if err := tx.DeleteEvent(ctx, eventID); err != nil {
			return err
		}
		return w.maintainer.OnWrite(ctx, tx, Change{Kind: types.KindEvent, ID: eventID, Deleted: true})
	})
}

// DeleteVenue removes a venue and its derived rows. Events held there keep
// existing without a venue.
func (w *Writer) DeleteVenue(ctx context.Context, venueID int64) error {
	return w.write(ctx, types.KindVenue, "delete", func(tx storage.Tx) error {
		if err := tx.DeleteVenue(ctx, venueID); err != nil {
			return err
		}
		return w.maintainer.OnWrite(ctx, tx, Change{Kind: types.KindVenue, ID: venueID, Deleted: true})
	})
}

// DeleteOffer removes an offer
func (w *Writer) DeleteOffer(ctx context.Context, offerID int64) error {
	return w.write(ctx, types.KindOffer, "delete", func(tx storage.Tx) error {
		return tx.DeleteOffer(ctx, offerID)
	})
}

// eventChanges diffs event against its stored row. existed is false for creates.
func eventChanges(ctx context.Context, tx storage.Tx, event *types.Event) (changed []string, existed bool, err error) {
	if event.ID == 0 {
		return nil, false, nil
	}
	prev, err := tx.GetEvent(ctx, event.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	source := event.Source
	if source == "" {
		source = types.SourceManual
	}
	if prev.Title != event.Title {
		changed = append(changed, types.FieldTitle)
	}
	if !equalPtr(prev.Description, event.Description) {
		changed = append(changed, types.FieldDescription)
	}
	if !sameInstant(&prev.StartAt, &event.StartAt) {
		changed = append(changed, types.FieldStartAt)
	}
	if !sameInstant(prev.EndAt, event.EndAt) {
		changed = append(changed, types.FieldEndAt)
	}
	if !equalPtr(prev.LocationText, event.LocationText) {
		changed = append(changed, types.FieldLocationText)
	}
	if !equalPtr(prev.VenueID, event.VenueID) {
		changed = append(changed, types.FieldVenueID)
	}
	if prev.Source != source {
		changed = append(changed, types.FieldSource)
	}
	return changed, true, nil
}

// venueChanges diffs venue against its stored row. existed is false for creates.
func venueChanges(ctx context.Context, tx storage.Tx, venue *types.Venue) (changed []string, existed bool, err error) {
	if venue.ID == 0 {
		return nil, false, nil
	}
	prev, err := tx.GetVenue(ctx, venue.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if prev.Name != venue.Name {
		changed = append(changed, types.FieldName)
	}
	if !equalPtr(prev.Latitude, venue.Latitude) {
		changed = append(changed, types.FieldLatitude)
	}
	if !equalPtr(prev.Longitude, venue.Longitude) {
		changed = append(changed, types.FieldLongitude)
	}
	if !equalPtr(prev.Address, venue.Address) {
		changed = append(changed, types.FieldAddress)
	}
	if !equalPtr(prev.City, venue.City) {
		changed = append(changed, types.FieldCity)
	}
	return changed, true, nil
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// sameInstant compares at the millisecond precision the store keeps
func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UnixMilli() == b.UnixMilli()
}
