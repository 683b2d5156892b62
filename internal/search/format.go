package search

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/aptlens/aptlens/internal/model"
)

// printer groups integers and decimals with thousands separators.
var printer = message.NewPrinter(language.English)

// renderRow formats every display column of a row. Absent values render as
// empty strings; columns with no formatting rule fall back to the raw text.
func renderRow(tx *model.Transaction) map[string]string {
	out := make(map[string]string, len(model.DisplayColumns))
	for _, col := range model.DisplayColumns {
		switch col {
		case model.ColDistrict, model.ColLot, model.ColComplex, model.ColRoadAddress:
			out[col] = tx.Text(col)
		default:
			v, ok := tx.Numeric(col)
			if !ok {
				out[col] = ""
				continue
			}
			out[col] = formatValue(col, v)
		}
	}
	return out
}

func formatValue(col string, v float64) string {
	switch col {
	case model.ColPrice:
		return printer.Sprintf("%d", int64(v))
	case model.ColPricePerPyeong, model.ColSupplyPyeong:
		return printer.Sprintf("%.2f", v)
	case model.ColArea, model.ColAreaPyeong:
		return fmt.Sprintf("%.2f", v)
	case model.ColFloor, model.ColBuildYear, model.ColContractYM:
		return fmt.Sprintf("%d", int64(v))
	case model.ColLatitude, model.ColLongitude:
		return fmt.Sprintf("%.6f", v)
	case model.ColDistanceKm:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
