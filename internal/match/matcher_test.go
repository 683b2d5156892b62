package match

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptlens/aptlens/internal/entity"
	"github.com/aptlens/aptlens/internal/model"
	"github.com/aptlens/aptlens/pkg/geocode"
)

func newStore(t *testing.T) *entity.SQLiteStore {
	t.Helper()
	s, err := entity.NewSQLite(filepath.Join(t.TempDir(), "apt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptr(v float64) *float64 { return &v }

func seed(t *testing.T, s entity.Store, e model.Entity) {
	t.Helper()
	_, err := s.InsertIfAbsent(context.Background(), e)
	require.NoError(t, err)
}

// geoFunc adapts a function to geocode.Client.
type geoFunc struct {
	calls  atomic.Int32
	lookup func(address string) *geocode.Result
}

func (g *geoFunc) Lookup(_ context.Context, address string) (*geocode.Result, error) {
	g.calls.Add(1)
	if g.lookup == nil {
		return &geocode.Result{Matched: false}, nil
	}
	return g.lookup(address), nil
}

func noGeo() *geocode.Cache { return geocode.NewCache(&geoFunc{}) }

func TestResolveAll_NameStage(t *testing.T) {
	s := newStore(t)
	seed(t, s, model.Entity{Name: "송도더샵", Latitude: ptr(37.38), Longitude: ptr(126.64)})

	rows := []model.Transaction{{Complex: "송도더샵"}, {Complex: "미등록단지"}}
	stats, err := NewMatcher(s, noGeo()).ResolveAll(context.Background(), rows)
	require.NoError(t, err)

	assert.True(t, rows[0].Located())
	assert.InDelta(t, 37.38, *rows[0].Latitude, 1e-9)
	assert.False(t, rows[1].Located())
	assert.Equal(t, 1, stats.ByStage["name"])
}

func TestResolveAll_CascadePriority(t *testing.T) {
	s := newStore(t)
	// Same complex reachable by name and by road address; the name stage
	// must claim it first.
	seed(t, s, model.Entity{Name: "힐스테이트", Latitude: ptr(37.50), Longitude: ptr(127.05)})
	seed(t, s, model.Entity{Name: "other", RoadAddress: "테헤란로 1", Latitude: ptr(1), Longitude: ptr(1)})

	rows := []model.Transaction{{Complex: "힐스테이트", RoadAddress: "테헤란로 1"}}
	stats, err := NewMatcher(s, noGeo()).ResolveAll(context.Background(), rows)
	require.NoError(t, err)

	assert.InDelta(t, 37.50, *rows[0].Latitude, 1e-9)
	assert.Equal(t, 1, stats.ByStage["name"])
	assert.Equal(t, 0, stats.ByStage["road_address"])
}

func TestResolveAll_LotAndPrefixStages(t *testing.T) {
	s := newStore(t)
	seed(t, s, model.Entity{Name: "A", LotAddress: "인천 연수구 송도동 23-1", Latitude: ptr(37.38), Longitude: ptr(126.64)})

	rows := []model.Transaction{
		{District: "인천 연수구 송도동", Lot: "23-1"}, // exact lot match
		{District: "인천 연수구 송도동"},              // prefix match only
	}
	stats, err := NewMatcher(s, noGeo()).ResolveAll(context.Background(), rows)
	require.NoError(t, err)

	assert.True(t, rows[0].Located())
	assert.True(t, rows[1].Located())
	assert.Equal(t, 1, stats.ByStage["lot_address"])
	assert.Equal(t, 1, stats.ByStage["district_prefix"])
}

func TestResolveAll_GeocodeFallbackAndRegistration(t *testing.T) {
	s := newStore(t)
	geo := geocode.NewCache(&geoFunc{lookup: func(address string) *geocode.Result {
		if address == "컨벤시아대로 100" {
			return &geocode.Result{Latitude: 37.39, Longitude: 126.65, Matched: true}
		}
		return &geocode.Result{Matched: false}
	}})

	rows := []model.Transaction{
		{Complex: "신규단지", RoadAddress: "컨벤시아대로 100"},
		{Complex: "미지단지", District: "어디 모름동", Lot: "1"},
	}
	m := NewMatcher(s, geo)
	stats, err := m.ResolveAll(context.Background(), rows)
	require.NoError(t, err)

	assert.True(t, rows[0].Located())
	assert.False(t, rows[1].Located())
	assert.Equal(t, 1, stats.Geocoded)
	assert.Equal(t, 1, stats.Registered, "only the still-unlocated row is registered")

	// A second identical run inserts nothing new.
	rows2 := []model.Transaction{{Complex: "미지단지", District: "어디 모름동", Lot: "1"}}
	stats2, err := m.ResolveAll(context.Background(), rows2)
	require.NoError(t, err)
	assert.Equal(t, 0, stats2.Registered)
}

func TestResolveAll_DuplicateRowsRegisterOnce(t *testing.T) {
	s := newStore(t)
	row := model.Transaction{Complex: "중복단지", District: "서울 어딘가동", Lot: "5"}
	rows := []model.Transaction{row, row, row}

	stats, err := NewMatcher(s, noGeo()).ResolveAll(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Registered)
}

// failingStore breaks the name lookup while leaving the rest intact.
type failingStore struct {
	entity.Store
}

func (f *failingStore) FindByNames(context.Context, []string) ([]model.Entity, error) {
	return nil, eris.New("boom")
}

func TestResolveAll_StageFailureIsSkipped(t *testing.T) {
	s := newStore(t)
	seed(t, s, model.Entity{Name: "단지", RoadAddress: "로로 9", Latitude: ptr(37.0), Longitude: ptr(127.0)})

	rows := []model.Transaction{{Complex: "단지", RoadAddress: "로로 9"}}
	stats, err := NewMatcher(&failingStore{Store: s}, noGeo()).ResolveAll(context.Background(), rows)
	require.NoError(t, err)

	assert.True(t, rows[0].Located(), "road stage still resolves after name stage failure")
	assert.Equal(t, 0, stats.ByStage["name"])
	assert.Equal(t, 1, stats.ByStage["road_address"])
}

func TestResolveAll_AlreadyLocatedRowsUntouched(t *testing.T) {
	s := newStore(t)
	seed(t, s, model.Entity{Name: "단지", Latitude: ptr(1), Longitude: ptr(1)})

	rows := []model.Transaction{{Complex: "단지", Latitude: ptr(37.0), Longitude: ptr(127.0)}}
	stats, err := NewMatcher(s, noGeo()).ResolveAll(context.Background(), rows)
	require.NoError(t, err)

	assert.InDelta(t, 37.0, *rows[0].Latitude, 1e-9)
	assert.Equal(t, 1, stats.Matched)
}

func TestBackfiller_Run(t *testing.T) {
	s := newStore(t)
	seed(t, s, model.Entity{Name: "무좌표단지", LotAddress: "인천 연수구 송도동 50"})
	seed(t, s, model.Entity{Name: "영원미지", LotAddress: "어디 모름동 1"})

	geo := geocode.NewCache(&geoFunc{lookup: func(address string) *geocode.Result {
		if address == "인천 연수구 송도동 50" {
			return &geocode.Result{Latitude: 37.38, Longitude: 126.64, Matched: true}
		}
		return &geocode.Result{Matched: false}
	}})

	b := NewBackfiller(s, geo)
	stats, err := b.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Unresolved)

	// The located entity leaves the missing set.
	stats, err = b.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 0, stats.Updated)
}
