package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/entity"
	"github.com/aptlens/aptlens/internal/model"
	"github.com/aptlens/aptlens/pkg/geocode"
)

// BackfillStats summarizes one backfill pass.
type BackfillStats struct {
	Scanned    int
	Updated    int
	Unresolved int
}

// Backfiller geocodes stored entities that were registered without
// coordinates. Only the unknown-to-known transition is ever written.
type Backfiller struct {
	store entity.Store
	geo   *geocode.Cache
}

func NewBackfiller(store entity.Store, geo *geocode.Cache) *Backfiller {
	return &Backfiller{store: store, geo: geo}
}

// Run processes up to limit coordinate-less entities.
func (b *Backfiller) Run(ctx context.Context, limit int) (BackfillStats, error) {
	var stats BackfillStats

	missing, err := b.store.ListMissingCoordinates(ctx, limit)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(missing)

	for _, e := range missing {
		addr := bestEntityAddress(e)
		if addr == "" {
			stats.Unresolved++
			continue
		}
		res, err := b.geo.Resolve(ctx, addr)
		if err != nil {
			return stats, err
		}
		if !res.Matched {
			stats.Unresolved++
			continue
		}
		updated, err := b.store.BackfillCoordinates(ctx, e.ID, res.Latitude, res.Longitude)
		if err != nil {
			return stats, err
		}
		if updated {
			stats.Updated++
		}
	}

	zap.L().Info("backfill pass finished",
		zap.Int("scanned", stats.Scanned),
		zap.Int("updated", stats.Updated),
		zap.Int("unresolved", stats.Unresolved),
	)
	return stats, nil
}

// bestEntityAddress mirrors the row-side precedence: road address, then lot
// address, then the complex name.
func bestEntityAddress(e model.Entity) string {
	if e.RoadAddress != "" {
		return e.RoadAddress
	}
	if e.LotAddress != "" {
		return e.LotAddress
	}
	return e.Name
}
