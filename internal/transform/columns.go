// Package transform normalizes raw ingest tables into typed transaction
// rows: header canonicalization, exclusion of direct-deal and cancelled
// records, numeric coercion, and derived per-pyeong prices.
package transform

import (
	"strings"

	"github.com/aptlens/aptlens/internal/model"
)

// Source-only columns consulted during filtering. They do not survive into
// the normalized row.
const (
	colTradeType   = "trade_type"   // 거래유형
	colCancelledAt = "cancelled_at" // 해제사유발생일
)

// headerStripper removes the decoration ministry headers accumulate across
// export versions so variants fold onto one key.
var headerStripper = strings.NewReplacer(
	" ", "",
	"(", "",
	")", "",
	"㎡", "",
	",", "",
	"-", "",
)

// exact normalized-header synonyms.
var headerSynonyms = map[string]string{
	"시군구":     model.ColDistrict,
	"번지":      model.ColLot,
	"단지명":     model.ColComplex,
	"계약년월":    model.ColContractYM,
	"층":       model.ColFloor,
	"도로명":     model.ColRoadAddress,
	"거래유형":    colTradeType,
	"해제사유발생일": colCancelledAt,
}

// substring synonyms, applied after the exact table misses. Export versions
// vary the decoration around these stems more than anywhere else.
var headerStems = []struct {
	stem string
	key  string
}{
	{"전용면적", model.ColArea},
	{"거래금액", model.ColPrice},
	{"건축년도", model.ColBuildYear},
	{"도로명", model.ColRoadAddress},
}

// CanonicalizeHeader maps raw header cells to canonical column keys.
// Unrecognized headers keep their normalized form so the audit log can still
// name them.
func CanonicalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	for i, h := range raw {
		out[i] = canonicalKey(h)
	}
	return out
}

func canonicalKey(raw string) string {
	h := headerStripper.Replace(strings.TrimSpace(raw))
	if key, ok := headerSynonyms[h]; ok {
		return key
	}
	for _, s := range headerStems {
		if strings.Contains(h, s.stem) {
			return s.key
		}
	}
	return h
}

// columnIndex locates canonical columns in a header, -1 when absent.
type columnIndex map[string]int

func indexColumns(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, key := range header {
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// cell returns the trimmed value of a canonical column on a possibly ragged
// record, empty when the column or cell is absent.
func (idx columnIndex) cell(record []string, key string) string {
	i, ok := idx[key]
	if !ok || i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
