package models

import (
	"encoding/json"
	"strconv"
)

// The indexer schema has drifted across deployments: borrower/liquidator
// may arrive as a bare address string or as an object carrying the address
// under a field of the same name, and USD valuations may arrive as numbers
// or numeric strings. The wire types below absorb both shapes so that only
// the canonical flat LiquidationRecord exists past the decode boundary.

// WireAddress decodes either "0xabc..." or {"address": "0xabc..."}.
type WireAddress string

func (a *WireAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = WireAddress(s)
		return nil
	}

	var obj struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*a = WireAddress(obj.Address)
	return nil
}

// WireUSD decodes a nullable USD valuation that may be a JSON number or a
// numeric string. Unparseable values collapse to absent.
type WireUSD struct {
	Value *float64
}

func (u *WireUSD) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		u.Value = nil
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		u.Value = &n
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := strconv.ParseFloat(s, 64); err == nil {
		u.Value = &parsed
	} else {
		u.Value = nil
	}
	return nil
}

// WireLiquidation is the tolerant decode target for one indexer row.
type WireLiquidation struct {
	ID              string      `json:"id"`
	ChainID         int64       `json:"chainId"`
	Timestamp       string      `json:"timestamp"`
	Protocol        string      `json:"protocol"`
	Borrower        WireAddress `json:"borrower"`
	Liquidator      WireAddress `json:"liquidator"`
	TxHash          string      `json:"txHash"`
	CollateralAsset *string     `json:"collateralAsset"`
	DebtAsset       *string     `json:"debtAsset"`
	RepaidAssets    *string     `json:"repaidAssets"`
	SeizedAssets    *string     `json:"seizedAssets"`
	RepaidAssetsUSD WireUSD     `json:"repaidAssetsUSD"`
	SeizedAssetsUSD WireUSD     `json:"seizedAssetsUSD"`
}

// Normalize maps a wire row onto the canonical flat record. Absent optional
// fields become empty strings, null USD valuations stay nil.
func (w WireLiquidation) Normalize() LiquidationRecord {
	return LiquidationRecord{
		ID:              w.ID,
		ChainID:         w.ChainID,
		Timestamp:       w.Timestamp,
		Protocol:        w.Protocol,
		Borrower:        string(w.Borrower),
		Liquidator:      string(w.Liquidator),
		TxHash:          w.TxHash,
		CollateralAsset: deref(w.CollateralAsset),
		DebtAsset:       deref(w.DebtAsset),
		RepaidAssets:    deref(w.RepaidAssets),
		SeizedAssets:    deref(w.SeizedAssets),
		RepaidAssetsUSD: w.RepaidAssetsUSD.Value,
		SeizedAssetsUSD: w.SeizedAssetsUSD.Value,
	}
}

// NormalizeAll maps a decoded result list onto canonical records.
func NormalizeAll(rows []WireLiquidation) []LiquidationRecord {
	records := make([]LiquidationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Normalize())
	}
	return records
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
