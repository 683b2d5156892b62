package transform

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/ingest"
	"github.com/aptlens/aptlens/internal/model"
)

// Drop reasons recorded in the audit log.
const (
	ReasonDirectTrade = "direct_trade"
	ReasonCancelled   = "cancelled"
)

const sqmPerPyeong = 0.3025

// Apply normalizes a raw table into transaction rows. Excluded rows go to
// the audit log; a nil audit discards them silently. Unparseable numerics
// become absent values, never errors.
func Apply(table *ingest.Table, audit *AuditLog) []model.Transaction {
	header := CanonicalizeHeader(table.Header)
	idx := indexColumns(header)

	rows := make([]model.Transaction, 0, len(table.Rows))
	var directDrops, cancelledDrops int
	for _, record := range table.Rows {
		if idx.cell(record, colTradeType) == "직거래" {
			audit.Record(ReasonDirectTrade, record)
			directDrops++
			continue
		}
		// Cancellation dates arrive as yyyymmdd; "-" and blanks mean the
		// deal stands.
		if _, ok := coerce(idx.cell(record, colCancelledAt)); ok {
			audit.Record(ReasonCancelled, record)
			cancelledDrops++
			continue
		}
		rows = append(rows, buildRow(idx, record))
	}

	zap.L().Info("table transformed",
		zap.Int("input_rows", len(table.Rows)),
		zap.Int("kept", len(rows)),
		zap.Int("dropped_direct_trade", directDrops),
		zap.Int("dropped_cancelled", cancelledDrops),
	)
	return rows
}

func buildRow(idx columnIndex, record []string) model.Transaction {
	tx := model.Transaction{
		District:    idx.cell(record, model.ColDistrict),
		Lot:         idx.cell(record, model.ColLot),
		Complex:     idx.cell(record, model.ColComplex),
		RoadAddress: idx.cell(record, model.ColRoadAddress),

		Area:       numeric(idx, record, model.ColArea),
		ContractYM: numeric(idx, record, model.ColContractYM),
		Price:      numeric(idx, record, model.ColPrice),
		Floor:      numeric(idx, record, model.ColFloor),
		BuildYear:  numeric(idx, record, model.ColBuildYear),
	}
	derive(&tx)
	return tx
}

// derive fills the per-pyeong price fields from area and price.
func derive(tx *model.Transaction) {
	if tx.Area == nil {
		return
	}
	pyeong := round2(*tx.Area * sqmPerPyeong)
	tx.AreaPyeong = &pyeong
	if tx.Price == nil || pyeong <= 0 {
		return
	}
	perPyeong := round2(*tx.Price / pyeong)
	supply := round2(perPyeong * 0.75)
	tx.PricePerPyeong = &perPyeong
	tx.SupplyPerPyeong = &supply
}

func numeric(idx columnIndex, record []string, key string) *float64 {
	v, ok := coerce(idx.cell(record, key))
	if !ok {
		return nil
	}
	return &v
}

// coerce parses a numeric cell, stripping thousands separators first.
func coerce(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
