package pipeline

import (
	"github.com/aptlens/aptlens/internal/model"
)

// Stats is the analysis summary printed after a run.
type Stats struct {
	Total      int            `json:"total"`
	Located    int            `json:"located"`
	AvgArea    float64        `json:"avg_area"`
	AvgPrice   float64        `json:"avg_price"`
	ByDistrict map[string]int `json:"by_district"`
	ByComplex  map[string]int `json:"by_complex"`
}

// Summarize computes dataset statistics. Averages skip absent values.
func Summarize(rows []model.Transaction) Stats {
	stats := Stats{
		Total:      len(rows),
		ByDistrict: make(map[string]int),
		ByComplex:  make(map[string]int),
	}

	var areaSum, priceSum float64
	var areaN, priceN int
	for i := range rows {
		tx := &rows[i]
		if tx.Located() {
			stats.Located++
		}
		if tx.District != "" {
			stats.ByDistrict[tx.District]++
		}
		if tx.Complex != "" {
			stats.ByComplex[tx.Complex]++
		}
		if v, ok := tx.Numeric(model.ColArea); ok {
			areaSum += v
			areaN++
		}
		if v, ok := tx.Numeric(model.ColPrice); ok {
			priceSum += v
			priceN++
		}
	}
	if areaN > 0 {
		stats.AvgArea = areaSum / float64(areaN)
	}
	if priceN > 0 {
		stats.AvgPrice = priceSum / float64(priceN)
	}
	return stats
}
