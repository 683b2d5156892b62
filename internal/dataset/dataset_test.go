package dataset

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptlens/aptlens/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestHash_Deterministic(t *testing.T) {
	a := Hash([]byte("file contents"))
	assert.Equal(t, a, Hash([]byte("file contents")))
	assert.NotEqual(t, a, Hash([]byte("other contents")))
	assert.Len(t, a, 64)
}

func TestCache_SaveLoadRoundTrip(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	hash := Hash([]byte("upload"))
	in := &Dataset{
		Manifest: Manifest{
			Hash:      hash,
			Source:    "transactions.csv",
			Rows:      2,
			Matched:   1,
			CreatedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		},
		Rows: []model.Transaction{
			{
				District: "인천 연수구 송도동", Lot: "23-1", Complex: "송도더샵",
				RoadAddress: "컨벤시아대로 100",
				Area:        ptr(84.95), Price: ptr(82000), BuildYear: ptr(2010),
				AreaPyeong: ptr(25.7), PricePerPyeong: ptr(3190.66),
				Latitude: ptr(37.3825), Longitude: ptr(126.6575),
			},
			{District: "서울 강남구 삼성동", Complex: "무좌표"},
		},
	}
	require.NoError(t, c.Save(in))

	out, err := c.Load(hash)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, in.Manifest, out.Manifest)
	require.Len(t, out.Rows, 2)

	got := out.Rows[0]
	assert.Equal(t, "송도더샵", got.Complex)
	assert.Equal(t, "인천 연수구 송도동 23-1", got.LotAddress())
	require.NotNil(t, got.Price)
	assert.InDelta(t, 82000, *got.Price, 1e-9)
	assert.InDelta(t, 37.3825, *got.Latitude, 1e-9)
	assert.True(t, got.Located())

	assert.Nil(t, out.Rows[1].Price, "absent values stay absent through the round trip")
	assert.False(t, out.Rows[1].Located())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []model.Transaction{
		{Complex: "송도더샵", Price: ptr(82000)},
	}
	require.NoError(t, WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.DisplayColumns, records[0])
	assert.Contains(t, records[1], "송도더샵")
	assert.Contains(t, records[1], "82000")
}

func TestCache_LoadMissIsNil(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	out, err := c.Load(Hash([]byte("never saved")))
	require.NoError(t, err)
	assert.Nil(t, out)
}
