// Package search filters analyzed transaction rows around a center address:
// bucket facets, radius cut, sorting, pagination, and display formatting.
package search

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aptlens/aptlens/internal/model"
	"github.com/aptlens/aptlens/pkg/geocode"
)

// Query describes one search request.
type Query struct {
	Address     string  `json:"address"`
	RadiusKm    float64 `json:"radius_km"`
	AreaBucket  string  `json:"area_bucket"`  // all, le60, gt60le85, gt85le102, gt102le135, gt135
	BuildBucket string  `json:"build_bucket"` // all, recent5, recent10, recent15, over15
	SortBy      string  `json:"sort_by"`
	SortDesc    bool    `json:"sort_desc"`
	Page        int     `json:"page"`
	PerPage     int     `json:"per_page"`
}

// Result is one rendered result page.
type Result struct {
	Found   bool   `json:"found"`
	Message string `json:"message,omitempty"`

	CenterLatitude  float64 `json:"center_latitude,omitempty"`
	CenterLongitude float64 `json:"center_longitude,omitempty"`

	Columns    []string            `json:"columns"`
	Rows       []map[string]string `json:"rows"`
	TotalCount int                 `json:"total_count"`
	Page       int                 `json:"page"`
	TotalPages int                 `json:"total_pages"`
	AvgPrice   string              `json:"avg_price,omitempty"`
}

const defaultPerPage = 20

// Engine runs searches. The clock is injectable so build-year buckets are
// testable.
type Engine struct {
	geo *geocode.Cache
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the bucket reference clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(geo *geocode.Cache, opts ...Option) *Engine {
	e := &Engine{geo: geo, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Filter resolves the center and applies facets, the radius cut, and
// sorting, returning the matching rows without pagination or formatting.
// An unresolved center is not an error: the returned geocode result has
// Matched=false and the rows are nil. The input slice is not modified;
// distances land on copies.
func (e *Engine) Filter(ctx context.Context, rows []model.Transaction, q Query) (*geocode.Result, []model.Transaction, error) {
	center, err := e.geo.Resolve(ctx, q.Address)
	if err != nil {
		return nil, nil, err
	}
	if !center.Matched {
		return center, nil, nil
	}

	filtered := filterBuckets(rows, q, e.now().Year())
	filtered, err = withinRadius(ctx, filtered, center.Latitude, center.Longitude, q.RadiusKm)
	if err != nil {
		return nil, nil, err
	}
	sortRows(filtered, q.SortBy, q.SortDesc)
	return center, filtered, nil
}

// Search runs the full pipeline over the dataset's rows: Filter plus
// averaging, pagination, and display formatting.
func (e *Engine) Search(ctx context.Context, rows []model.Transaction, q Query) (*Result, error) {
	center, filtered, err := e.Filter(ctx, rows, q)
	if err != nil {
		return nil, err
	}
	if !center.Matched {
		return &Result{
			Found:   false,
			Message: fmt.Sprintf("address not found: %s", q.Address),
			Columns: model.DisplayColumns,
			Rows:    []map[string]string{},
		}, nil
	}

	res := &Result{
		Found:           true,
		CenterLatitude:  center.Latitude,
		CenterLongitude: center.Longitude,
		Columns:         model.DisplayColumns,
		TotalCount:      len(filtered),
		AvgPrice:        averagePrice(filtered),
	}

	page, totalPages, window := paginate(filtered, q.Page, q.PerPage)
	res.Page = page
	res.TotalPages = totalPages
	res.Rows = renderRows(window)
	if res.TotalCount == 0 {
		res.Message = "no transactions within the requested radius"
	}
	return res, nil
}

// filterBuckets applies the area and build-year facets. Rows missing the
// faceted value drop out of any bucket except "all"; unknown bucket names
// behave as "all".
func filterBuckets(rows []model.Transaction, q Query, nowYear int) []model.Transaction {
	areaOK := areaPredicate(q.AreaBucket)
	buildOK := buildYearPredicate(q.BuildBucket, nowYear)

	out := make([]model.Transaction, 0, len(rows))
	for _, tx := range rows {
		if !tx.Located() {
			continue
		}
		if areaOK != nil {
			v, ok := tx.Numeric(model.ColArea)
			if !ok || !areaOK(v) {
				continue
			}
		}
		if buildOK != nil {
			v, ok := tx.Numeric(model.ColBuildYear)
			if !ok || !buildOK(v) {
				continue
			}
		}
		out = append(out, tx)
	}
	return out
}

func areaPredicate(bucket string) func(float64) bool {
	switch bucket {
	case "le60":
		return func(a float64) bool { return a <= 60 }
	case "gt60le85":
		return func(a float64) bool { return a > 60 && a <= 85 }
	case "gt85le102":
		return func(a float64) bool { return a > 85 && a <= 102 }
	case "gt102le135":
		return func(a float64) bool { return a > 102 && a <= 135 }
	case "gt135":
		return func(a float64) bool { return a > 135 }
	default:
		return nil
	}
}

func buildYearPredicate(bucket string, nowYear int) func(float64) bool {
	switch bucket {
	case "recent5":
		return func(y float64) bool { return y >= float64(nowYear-5) }
	case "recent10":
		return func(y float64) bool { return y >= float64(nowYear-10) }
	case "recent15":
		return func(y float64) bool { return y >= float64(nowYear-15) }
	case "over15":
		return func(y float64) bool { return y < float64(nowYear-15) }
	default:
		return nil
	}
}

// withinRadius computes geodesic distances in parallel and keeps rows inside
// the radius. Row order is preserved.
func withinRadius(ctx context.Context, rows []model.Transaction, lat, lon, radiusKm float64) ([]model.Transaction, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range rows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d := haversineKm(lat, lon, *rows[i].Latitude, *rows[i].Longitude)
			rows[i].DistanceKm = &d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, tx := range rows {
		if *tx.DistanceKm <= radiusKm {
			out = append(out, tx)
		}
	}
	return out, nil
}

// sortRows orders rows on a column, lexically for text columns and
// numerically otherwise. Absent values sink to the end in both directions;
// the sort is stable so equal rows keep input order.
func sortRows(rows []model.Transaction, col string, desc bool) {
	if col == "" {
		return
	}
	if isTextColumn(col) {
		sort.SliceStable(rows, func(i, j int) bool {
			vi, vj := rows[i].Text(col), rows[j].Text(col)
			if (vi == "") != (vj == "") {
				return vi != "" // present before absent
			}
			if vi == "" {
				return false
			}
			if desc {
				return vi > vj
			}
			return vi < vj
		})
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, oki := rows[i].Numeric(col)
		vj, okj := rows[j].Numeric(col)
		if oki != okj {
			return oki // present before absent
		}
		if !oki {
			return false
		}
		if desc {
			return vi > vj
		}
		return vi < vj
	})
}

func isTextColumn(col string) bool {
	switch col {
	case model.ColDistrict, model.ColLot, model.ColComplex, model.ColRoadAddress:
		return true
	}
	return false
}

// averagePrice averages price over the pre-pagination rows, skipping rows
// without one. Empty input yields an empty string.
func averagePrice(rows []model.Transaction) string {
	var sum float64
	var n int
	for _, tx := range rows {
		if v, ok := tx.Numeric(model.ColPrice); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return formatValue(model.ColPrice, sum/float64(n))
}

// paginate clamps the page into range and slices the window.
func paginate(rows []model.Transaction, page, perPage int) (int, int, []model.Transaction) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	totalPages := (len(rows) + perPage - 1) / perPage
	if totalPages == 0 {
		return 1, 0, nil
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}
	return page, totalPages, rows[start:end]
}

func renderRows(rows []model.Transaction) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i := range rows {
		out[i] = renderRow(&rows[i])
	}
	return out
}
