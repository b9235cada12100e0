package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/enviodev/liqo/internal/models"
)

// utf8BOM is prepended so spreadsheet tools detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvHeader is the column set of the export. chainId is rendered as a bare
// number, optional fields as empty strings.
var csvHeader = []string{
	"timestamp",
	"protocol",
	"borrower",
	"liquidator",
	"txHash",
	"collateralAsset",
	"debtAsset",
	"repaidAssets",
	"repaidAssetsUSD",
	"seizedAssets",
	"seizedAssetsUSD",
	"chainId",
}

// WriteCSV writes the BOM, the header row and one row per record. Field
// quoting follows RFC 4180: values containing a comma, quote or newline are
// wrapped in double quotes with inner quotes doubled.
func WriteCSV(w io.Writer, records []models.LiquidationRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("export: write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp,
			rec.Protocol,
			rec.Borrower,
			rec.Liquidator,
			rec.TxHash,
			rec.CollateralAsset,
			rec.DebtAsset,
			rec.RepaidAssets,
			formatUSD(rec.RepaidAssetsUSD),
			rec.SeizedAssets,
			formatUSD(rec.SeizedAssetsUSD),
			strconv.FormatInt(rec.ChainID, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

func formatUSD(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
