// Package match attaches coordinates to transaction rows through a cascade
// of store-backed strategies with a geocoding fallback, and registers the
// rows that still miss so later runs can backfill them.
package match

import (
	"context"
	"strings"

	"github.com/aptlens/aptlens/internal/entity"
	"github.com/aptlens/aptlens/internal/model"
)

// Strategy resolves coordinates for the rows it is given. Implementations
// only see rows that earlier stages left unresolved and must skip rows they
// cannot match. A failing strategy yields zero matches; the cascade goes on.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, rows []*model.Transaction) error
}

// storeStage is a lookup stage against the entity store: it extracts one key
// per row, batch-fetches located entities for the distinct keys, and joins
// them back first-seen-wins.
type storeStage struct {
	name      string
	rowKey    func(*model.Transaction) string
	lookup    func(context.Context, []string) ([]model.Entity, error)
	entityKey func(model.Entity) string
}

func (s *storeStage) Name() string { return s.name }

func (s *storeStage) Resolve(ctx context.Context, rows []*model.Transaction) error {
	keys := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		k := s.rowKey(row)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}

	found, err := s.lookup(ctx, keys)
	if err != nil {
		return err
	}

	// First entity per key wins; store row order is stable so repeated runs
	// pick the same coordinates.
	byKey := make(map[string]model.Entity, len(found))
	for _, e := range found {
		k := s.entityKey(e)
		if _, dup := byKey[k]; dup {
			continue
		}
		byKey[k] = e
	}

	for _, row := range rows {
		if row.Located() {
			continue
		}
		if e, ok := byKey[s.rowKey(row)]; ok && e.Located() {
			row.Latitude = e.Latitude
			row.Longitude = e.Longitude
		}
	}
	return nil
}

// storeStages builds the lookup cascade in priority order: complex name,
// road address, exact district+lot.
func storeStages(store entity.Store) []Strategy {
	return []Strategy{
		&storeStage{
			name:      "name",
			rowKey:    func(t *model.Transaction) string { return t.Complex },
			lookup:    store.FindByNames,
			entityKey: func(e model.Entity) string { return e.Name },
		},
		&storeStage{
			name:      "road_address",
			rowKey:    func(t *model.Transaction) string { return t.RoadAddress },
			lookup:    store.FindByRoadAddresses,
			entityKey: func(e model.Entity) string { return e.RoadAddress },
		},
		&storeStage{
			name:      "lot_address",
			rowKey:    func(t *model.Transaction) string { return t.LotAddress() },
			lookup:    store.FindByLotAddresses,
			entityKey: func(e model.Entity) string { return e.LotAddress },
		},
	}
}

// prefixStage matches a row's district against the leading tokens of stored
// lot addresses. It is the loosest stage and runs last among store lookups.
type prefixStage struct {
	store entity.Store
}

func (s *prefixStage) Name() string { return "district_prefix" }

func (s *prefixStage) Resolve(ctx context.Context, rows []*model.Transaction) error {
	located, err := s.store.ListLocated(ctx)
	if err != nil {
		return err
	}

	// First located entity per district prefix wins.
	byPrefix := make(map[string]model.Entity)
	for _, e := range located {
		p := districtPrefix(e.LotAddress)
		if p == "" {
			continue
		}
		if _, dup := byPrefix[p]; dup {
			continue
		}
		byPrefix[p] = e
	}

	for _, row := range rows {
		if row.Located() || row.District == "" {
			continue
		}
		if e, ok := byPrefix[strings.TrimSpace(row.District)]; ok {
			row.Latitude = e.Latitude
			row.Longitude = e.Longitude
		}
	}
	return nil
}

// districtPrefix takes the first three whitespace tokens of a lot address,
// the city/gu/neighborhood part ahead of the lot number.
func districtPrefix(lotAddress string) string {
	fields := strings.Fields(lotAddress)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, " ")
}
