package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/internal/metrics"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/internal/textindex"
	"github.com/cwysong85/whenr-database/pkg/types"
)

// ErrUnknownKind is returned for a Change whose Kind is not a known entity
var ErrUnknownKind = errors.New("unknown entity kind")

// Change describes one source-row write. An empty ChangedFields means the
// entity was created and every derived representation must be built.
type Change struct {
	Kind          types.EntityKind
	ID            int64
	ChangedFields []string
	Deleted       bool
}

// touches reports whether any of fields contributed to this change
func (c Change) touches(fields ...string) bool {
	if len(c.ChangedFields) == 0 {
		return true
	}
	for _, changed := range c.ChangedFields {
		for _, f := range fields {
			if changed == f {
				return true
			}
		}
	}
	return false
}

// Maintainer keeps the derived text and spatial representations in step
// with source rows. It runs inside the writer's transaction and never defers work.
type Maintainer struct {
	text    *textindex.Indexer
	metrics *metrics.Metrics
}

// NewMaintainer creates a Maintainer. m may be nil.
func NewMaintainer(text *textindex.Indexer, m *metrics.Metrics) *Maintainer {
	return &Maintainer{text: text, metrics: m}
}

// OnWrite re-derives whatever the change invalidated and stores it through tx.
// A returned error means the derived state could not be made consistent and
// the caller must roll tx back.
func (m *Maintainer) OnWrite(ctx context.Context, tx storage.Tx, change Change) error {
	switch change.Kind {
	case types.KindEvent:
		return m.onEventWrite(ctx, tx, change)
	case types.KindVenue:
		return m.onVenueWrite(ctx, tx, change)
	case types.KindOffer:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, change.Kind)
	}
}

func (m *Maintainer) onEventWrite(ctx context.Context, tx storage.Tx, change Change) error {
	if change.Deleted {
		return tx.DeleteEventText(ctx, change.ID)
	}
	if !change.touches(types.FieldTitle, types.FieldDescription) {
		return nil
	}

	event, err := tx.GetEvent(ctx, change.ID)
	if err != nil {
		return fmt.Errorf("failed to load event %d: %w", change.ID, err)
	}

	rep := m.text.Derive(&event.Title, event.Description)
	if err := tx.PutEventText(ctx, event.ID, rep); err != nil {
		return err
	}
	m.metrics.RecordDerivation("text", string(types.KindEvent))
	return nil
}

func (m *Maintainer) onVenueWrite(ctx context.Context, tx storage.Tx, change Change) error {
	if change.Deleted {
		if err := tx.DeleteVenueText(ctx, change.ID); err != nil {
			return err
		}
		return tx.DeleteVenueGeo(ctx, change.ID)
	}

	textChanged := change.touches(types.FieldName)
	geoChanged := change.touches(types.FieldLatitude, types.FieldLongitude)
	if !textChanged && !geoChanged {
		return nil
	}

	venue, err := tx.GetVenue(ctx, change.ID)
	if err != nil {
		return fmt.Errorf("failed to load venue %d: %w", change.ID, err)
	}

	if geoChanged {
		// Derive before writing anything so an invalid coordinate leaves no partial state
		point, err := geoindex.Derive(venue.Latitude, venue.Longitude)
		if err != nil {
			return fmt.Errorf("venue %d: %w", venue.ID, err)
		}
		if err := tx.PutVenueGeo(ctx, venue.ID, point); err != nil {
			return err
		}
		m.metrics.RecordDerivation("geo", string(types.KindVenue))
	}

	if textChanged {
		rep := m.text.Derive(&venue.Name, nil)
		if err := tx.PutVenueText(ctx, venue.ID, rep); err != nil {
			return err
		}
		m.metrics.RecordDerivation("text", string(types.KindVenue))
	}
	return nil
}
