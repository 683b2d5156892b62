package transform

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptlens/aptlens/internal/ingest"
	"github.com/aptlens/aptlens/internal/model"
)

func TestCanonicalizeHeader(t *testing.T) {
	raw := []string{
		" 시군구 ", "번지", "단지명", "전용면적(㎡)", "계약년월",
		"거래금액(만원)", "층", "건축년도", " 도로명", "거래유형", "해제사유발생일",
		"등기일자",
	}
	got := CanonicalizeHeader(raw)
	want := []string{
		model.ColDistrict, model.ColLot, model.ColComplex, model.ColArea,
		model.ColContractYM, model.ColPrice, model.ColFloor, model.ColBuildYear,
		model.ColRoadAddress, colTradeType, colCancelledAt,
		"등기일자",
	}
	assert.Equal(t, want, got)
}

func newTable(header []string, rows ...[]string) *ingest.Table {
	return &ingest.Table{Header: header, Rows: rows}
}

var txHeader = []string{"시군구", "번지", "단지명", "전용면적(㎡)", "거래금액(만원)", "건축년도", "거래유형", "해제사유발생일"}

func TestApply_DropsDirectTrades(t *testing.T) {
	table := newTable(txHeader,
		[]string{"인천 연수구 송도동", "23-1", "송도더샵", "84.95", "82,000", "2010", "중개거래", "-"},
		[]string{"인천 연수구 송도동", "23-1", "송도더샵", "84.95", "80,000", "2010", "직거래", "-"},
	)
	rows := Apply(table, nil)
	require.Len(t, rows, 1)
	assert.InDelta(t, 82000, *rows[0].Price, 1e-9)
}

func TestApply_DropsCancelledRows(t *testing.T) {
	table := newTable(txHeader,
		[]string{"a", "1", "b", "80", "100", "2000", "", "20240101"},
		[]string{"a", "1", "b", "80", "100", "2000", "", "-"},
		[]string{"a", "1", "b", "80", "100", "2000", "", ""},
	)
	rows := Apply(table, nil)
	assert.Len(t, rows, 2, "only the numeric cancellation date is a drop")
}

func TestApply_CoercionAndDerivedFields(t *testing.T) {
	table := newTable(txHeader,
		[]string{"서울 강남구 삼성동", "12", "힐스테이트", "80", "48,400", "2015", "중개거래", "-"},
	)
	rows := Apply(table, nil)
	require.Len(t, rows, 1)
	tx := rows[0]

	require.NotNil(t, tx.AreaPyeong)
	assert.InDelta(t, 24.2, *tx.AreaPyeong, 1e-9)
	require.NotNil(t, tx.PricePerPyeong)
	assert.InDelta(t, 2000.0, *tx.PricePerPyeong, 1e-9)
	require.NotNil(t, tx.SupplyPerPyeong)
	assert.InDelta(t, 1500.0, *tx.SupplyPerPyeong, 1e-9)
}

func TestApply_UnparseableNumericsBecomeAbsent(t *testing.T) {
	table := newTable(txHeader,
		[]string{"a", "1", "b", "없음", "미상", "", "", "-"},
	)
	rows := Apply(table, nil)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Area)
	assert.Nil(t, rows[0].Price)
	assert.Nil(t, rows[0].BuildYear)
	assert.Nil(t, rows[0].AreaPyeong)
	assert.Nil(t, rows[0].PricePerPyeong)
}

func TestApply_RaggedRecordTolerated(t *testing.T) {
	table := newTable(txHeader,
		[]string{"a", "1", "b"},
	)
	rows := Apply(table, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].Complex)
	assert.Nil(t, rows[0].Area)
}

func TestAuditLog_RecordsDroppedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	audit, err := NewAuditLog(path)
	require.NoError(t, err)

	table := newTable(txHeader,
		[]string{"a", "1", "b", "80", "100", "2000", "직거래", "-"},
		[]string{"a", "1", "c", "80", "100", "2000", "", "20240101"},
		[]string{"a", "1", "d", "80", "100", "2000", "", "-"},
	)
	rows := Apply(table, audit)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, audit.Count())
	require.NoError(t, audit.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	var reasons []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry struct {
			Reason string   `json:"reason"`
			Record []string `json:"record"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		require.Len(t, entry.Record, len(txHeader))
		reasons = append(reasons, entry.Reason)
	}
	assert.Equal(t, []string{ReasonDirectTrade, ReasonCancelled}, reasons)
}

func TestAuditLog_NilIsNoOp(t *testing.T) {
	var audit *AuditLog
	audit.Record(ReasonDirectTrade, []string{"x"})
	assert.Equal(t, 0, audit.Count())
	assert.NoError(t, audit.Close())
}
