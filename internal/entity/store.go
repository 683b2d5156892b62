// Package entity persists master records for apartment complexes and serves
// the batched key lookups used by the matching cascade.
package entity

import (
	"context"

	"github.com/aptlens/aptlens/internal/model"
)

// Store is the persistence interface for master entities. Lookup methods are
// batched (IN-style) and return only entities that already carry
// coordinates; the cascade has no use for unlocated matches.
type Store interface {
	// Cascade lookups
	FindByNames(ctx context.Context, names []string) ([]model.Entity, error)
	FindByRoadAddresses(ctx context.Context, addrs []string) ([]model.Entity, error)
	FindByLotAddresses(ctx context.Context, addrs []string) ([]model.Entity, error)
	ListLocated(ctx context.Context) ([]model.Entity, error)

	// Write path
	InsertIfAbsent(ctx context.Context, e model.Entity) (bool, error)

	// Coordinate backfill: the only legal transition is
	// coordinates-unknown -> coordinates-known. Backfilling an already
	// located entity is a no-op.
	ListMissingCoordinates(ctx context.Context, limit int) ([]model.Entity, error)
	BackfillCoordinates(ctx context.Context, id string, lat, lon float64) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
