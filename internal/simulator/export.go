package simulator

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/atmx/margin-engine/internal/model"
)

var exportHeader = []string{
	"FX Shock (%)", "Shipping (%)", "Profit (GBP)", "Margin (%)",
	"Profit Lower (GBP)", "Profit Upper (GBP)", "Margin Lower (%)", "Margin Upper (%)",
}

// ExportFilename is the download name for a commodity's scenario grid.
func ExportFilename(commodity int) string {
	return fmt.Sprintf("import_scenarios_hs%d.csv", commodity)
}

// WriteGridCSV writes banded grid rows with two decimal places. Undefined
// margins are written as empty cells.
func WriteGridCSV(w io.Writer, rows []model.BandedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.FXShockPct.StringFixed(2),
			r.ShippingPct.StringFixed(2),
			r.Profit.StringFixed(2),
			nullFixed(r.MarginPct),
			r.ProfitLower.StringFixed(2),
			r.ProfitUpper.StringFixed(2),
			nullFixed(r.MarginLower),
			nullFixed(r.MarginUpper),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func nullFixed(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}
