package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orbitcrm/blueprint-engine/internal/engine"
)

// Clock is injected so deadline math and sweeps are testable against
// simulated time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func SystemClock() Clock { return systemClock{} }

// RecordStore supplies record field snapshots for condition evaluation and
// action templating. The engine never mutates records through it.
type RecordStore interface {
	GetSnapshot(ctx context.Context, recordID uuid.UUID) (engine.Snapshot, error)
}
