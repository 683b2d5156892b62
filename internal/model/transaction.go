package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Canonical column keys used across the pipeline. Raw files carry Korean
// ministry headers in several variants; the transform layer folds them into
// these identifiers.
const (
	ColDistrict       = "district"         // 시군구
	ColLot            = "lot"              // 번지
	ColComplex        = "complex"          // 단지명
	ColArea           = "area"             // 전용면적(㎡)
	ColContractYM     = "contract_ym"      // 계약년월
	ColPrice          = "price"            // 거래금액(만원)
	ColFloor          = "floor"            // 층
	ColBuildYear      = "build_year"       // 건축년도
	ColRoadAddress    = "road_address"     // 도로명
	ColAreaPyeong     = "area_pyeong"      // derived: area * 0.3025
	ColPricePerPyeong = "price_per_pyeong" // derived: price / area_pyeong
	ColSupplyPyeong   = "supply_per_pyeong"
	ColLatitude       = "latitude"
	ColLongitude      = "longitude"
	ColDistanceKm     = "distance_km"
)

// DisplayColumns is the canonical column ordering for rendered result pages
// and the on-disk dataset cache.
var DisplayColumns = []string{
	ColDistrict, ColLot, ColComplex, ColArea, ColContractYM, ColPrice,
	ColFloor, ColBuildYear, ColRoadAddress, ColAreaPyeong, ColPricePerPyeong,
	ColSupplyPyeong, ColLatitude, ColLongitude, ColDistanceKm,
}

// Transaction is a normalized transaction row. Numeric fields are pointers:
// nil means the source value was missing or unparseable, never zero.
type Transaction struct {
	District    string `json:"district"`
	Lot         string `json:"lot"`
	Complex     string `json:"complex"`
	RoadAddress string `json:"road_address"`

	Area       *float64 `json:"area,omitempty"`
	ContractYM *float64 `json:"contract_ym,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Floor      *float64 `json:"floor,omitempty"`
	BuildYear  *float64 `json:"build_year,omitempty"`

	AreaPyeong      *float64 `json:"area_pyeong,omitempty"`
	PricePerPyeong  *float64 `json:"price_per_pyeong,omitempty"`
	SupplyPerPyeong *float64 `json:"supply_per_pyeong,omitempty"`

	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Located reports whether the row carries both coordinates.
func (t *Transaction) Located() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// LotAddress is the district + lot-number concatenation used as a cascade key.
func (t *Transaction) LotAddress() string {
	return strings.TrimSpace(t.District + " " + t.Lot)
}

// Key extracts the row's alternate-identifier tuple.
func (t *Transaction) Key() AddressKey {
	return AddressKey{
		Name:        t.Complex,
		RoadAddress: t.RoadAddress,
		LotAddress:  t.LotAddress(),
		BuildYear:   FormatYear(t.BuildYear),
	}
}

// Numeric returns the value of a numeric column. The second return is false
// when the column is absent on this row or is not numeric at all.
func (t *Transaction) Numeric(col string) (float64, bool) {
	var p *float64
	switch col {
	case ColArea:
		p = t.Area
	case ColContractYM:
		p = t.ContractYM
	case ColPrice:
		p = t.Price
	case ColFloor:
		p = t.Floor
	case ColBuildYear:
		p = t.BuildYear
	case ColAreaPyeong:
		p = t.AreaPyeong
	case ColPricePerPyeong:
		p = t.PricePerPyeong
	case ColSupplyPyeong:
		p = t.SupplyPerPyeong
	case ColLatitude:
		p = t.Latitude
	case ColLongitude:
		p = t.Longitude
	case ColDistanceKm:
		p = t.DistanceKm
	default:
		return 0, false
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Text returns the raw string form of any column, empty for absent values.
func (t *Transaction) Text(col string) string {
	switch col {
	case ColDistrict:
		return t.District
	case ColLot:
		return t.Lot
	case ColComplex:
		return t.Complex
	case ColRoadAddress:
		return t.RoadAddress
	}
	if v, ok := t.Numeric(col); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// AddressKey is the alternate-identifier tuple used by the matching cascade
// and for entity deduplication. None of its parts is unique on its own.
type AddressKey struct {
	Name        string
	RoadAddress string
	LotAddress  string
	BuildYear   string
}

// Empty reports whether every identifier is blank.
func (k AddressKey) Empty() bool {
	return k.Name == "" && k.RoadAddress == "" && k.LotAddress == ""
}

// FormatYear renders a build year as an integral string, empty when absent.
func FormatYear(y *float64) string {
	if y == nil {
		return ""
	}
	return fmt.Sprintf("%d", int64(*y))
}
