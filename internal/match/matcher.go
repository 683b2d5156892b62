package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/entity"
	"github.com/aptlens/aptlens/internal/model"
	"github.com/aptlens/aptlens/pkg/geocode"
)

// Stats summarizes one resolution run.
type Stats struct {
	Total      int
	Matched    int
	Geocoded   int
	Registered int
	ByStage    map[string]int
}

// Matcher runs the coordinate cascade over transaction rows.
type Matcher struct {
	store entity.Store
	geo   *geocode.Cache
}

func NewMatcher(store entity.Store, geo *geocode.Cache) *Matcher {
	return &Matcher{store: store, geo: geo}
}

// ResolveAll attaches coordinates to rows in place. Store stages run first,
// the geocoder covers the remainder, and rows that still miss are registered
// in the store without coordinates so a later backfill can locate them.
func (m *Matcher) ResolveAll(ctx context.Context, rows []model.Transaction) (Stats, error) {
	stats := Stats{Total: len(rows), ByStage: make(map[string]int)}

	pending := make([]*model.Transaction, 0, len(rows))
	for i := range rows {
		if !rows[i].Located() {
			pending = append(pending, &rows[i])
		}
	}

	strategies := append(storeStages(m.store), &prefixStage{store: m.store})
	for _, s := range strategies {
		if len(pending) == 0 {
			break
		}
		before := len(pending)
		if err := s.Resolve(ctx, pending); err != nil {
			zap.L().Warn("match stage failed, skipping",
				zap.String("stage", s.Name()),
				zap.Error(err),
			)
		}
		pending = unresolved(pending)
		stats.ByStage[s.Name()] = before - len(pending)
	}

	if m.geo != nil && len(pending) > 0 {
		geocoded, err := m.geocodePending(ctx, pending)
		if err != nil {
			return stats, err
		}
		stats.Geocoded = geocoded
		stats.ByStage["geocode"] = geocoded
		pending = unresolved(pending)
	}

	registered, err := m.registerUnmatched(ctx, pending)
	if err != nil {
		return stats, err
	}
	stats.Registered = registered
	stats.Matched = stats.Total - len(pending)

	zap.L().Info("resolution cascade finished",
		zap.Int("total", stats.Total),
		zap.Int("matched", stats.Matched),
		zap.Int("geocoded", stats.Geocoded),
		zap.Int("registered", stats.Registered),
	)
	return stats, nil
}

// geocodePending resolves leftover rows through the geocode cache. Calls go
// sequentially; the client's rate gate dominates anyway and the cache folds
// duplicate addresses into one lookup.
func (m *Matcher) geocodePending(ctx context.Context, pending []*model.Transaction) (int, error) {
	var matched int
	for _, row := range pending {
		addr := bestAddress(row)
		if addr == "" {
			continue
		}
		res, err := m.geo.Resolve(ctx, addr)
		if err != nil {
			return matched, err
		}
		if !res.Matched {
			continue
		}
		lat, lon := res.Latitude, res.Longitude
		row.Latitude = &lat
		row.Longitude = &lon
		matched++
	}
	return matched, nil
}

// bestAddress picks the most specific geocodable address on a row.
func bestAddress(t *model.Transaction) string {
	if t.RoadAddress != "" {
		return t.RoadAddress
	}
	if lot := t.LotAddress(); lot != "" {
		return lot
	}
	return t.Complex
}

// registerUnmatched inserts one store entry per distinct address key among
// the rows that finished without coordinates. Inserts are idempotent, so a
// second run over the same file adds nothing.
func (m *Matcher) registerUnmatched(ctx context.Context, pending []*model.Transaction) (int, error) {
	seen := make(map[model.AddressKey]struct{}, len(pending))
	var inserted int
	for _, row := range pending {
		key := row.Key()
		if key.Empty() {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		ok, err := m.store.InsertIfAbsent(ctx, model.Entity{
			Name:        key.Name,
			RoadAddress: key.RoadAddress,
			LotAddress:  key.LotAddress,
			BuildYear:   key.BuildYear,
		})
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func unresolved(rows []*model.Transaction) []*model.Transaction {
	out := rows[:0]
	for _, row := range rows {
		if !row.Located() {
			out = append(out, row)
		}
	}
	return out
}
