package models

import "strconv"

// LiquidationRecord is one liquidation event as held by the dashboard.
// Records are immutable once indexed; the snapshot is replaced wholesale
// on each accepted poll.
type LiquidationRecord struct {
	ID              string   `json:"id"`
	ChainID         int64    `json:"chainId"`
	Timestamp       string   `json:"timestamp"`
	Protocol        string   `json:"protocol"`
	Borrower        string   `json:"borrower"`
	Liquidator      string   `json:"liquidator"`
	TxHash          string   `json:"txHash"`
	CollateralAsset string   `json:"collateralAsset,omitempty"`
	DebtAsset       string   `json:"debtAsset,omitempty"`
	RepaidAssets    string   `json:"repaidAssets,omitempty"`
	SeizedAssets    string   `json:"seizedAssets,omitempty"`
	RepaidAssetsUSD *float64 `json:"repaidAssetsUSD,omitempty"`
	SeizedAssetsUSD *float64 `json:"seizedAssetsUSD,omitempty"`
}

// TimestampUnix parses the record's timestamp (seconds since epoch as a
// numeric string). Malformed upstream timestamps sort as zero rather than
// failing the request.
func (r LiquidationRecord) TimestampUnix() int64 {
	ts, err := strconv.ParseInt(r.Timestamp, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// LiquidatorRow is one leaderboard entry, ranked by total liquidations.
// The per-protocol counters arrive as numeric strings from the indexer and
// are passed through untouched.
type LiquidatorRow struct {
	ID                 string `json:"id"`
	Liquidator         string `json:"liquidator"`
	ChainID            *int64 `json:"chainId,omitempty"`
	AaveLiquidations   string `json:"aaveLiquidations"`
	EulerLiquidations  string `json:"eulerLiquidations"`
	MorphoLiquidations string `json:"morphoLiquidations"`
	TotalLiquidations  string `json:"totalLiquidations"`
	FirstTimestamp     string `json:"firstLiquidationTimestamp,omitempty"`
	LastTimestamp      string `json:"lastLiquidationTimestamp,omitempty"`
}

// LiquidationStats is the indexer's single aggregate-statistics record.
type LiquidationStats struct {
	ID          string `json:"id"`
	ChainID     *int64 `json:"chainId,omitempty"`
	AaveCount   string `json:"aaveCount"`
	EulerCount  string `json:"eulerCount"`
	MorphoCount string `json:"morphoCount"`
	TotalCount  string `json:"totalCount"`
}
