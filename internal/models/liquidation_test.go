package models

import (
	"encoding/json"
	"testing"
)

func TestWireLiquidationFlatShape(t *testing.T) {
	raw := `{
		"id": "evt-1",
		"chainId": 1,
		"timestamp": "1700000000",
		"protocol": "Aave",
		"borrower": "0xborrower",
		"liquidator": "0xliquidator",
		"txHash": "0xtx",
		"collateralAsset": "WETH",
		"debtAsset": "USDC",
		"repaidAssets": "1000",
		"seizedAssets": "2000",
		"repaidAssetsUSD": 1234.5,
		"seizedAssetsUSD": null
	}`

	var wire WireLiquidation
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	rec := wire.Normalize()
	if rec.Borrower != "0xborrower" || rec.Liquidator != "0xliquidator" {
		t.Errorf("unexpected actors: %q %q", rec.Borrower, rec.Liquidator)
	}
	if rec.RepaidAssetsUSD == nil || *rec.RepaidAssetsUSD != 1234.5 {
		t.Errorf("unexpected repaid usd: %v", rec.RepaidAssetsUSD)
	}
	if rec.SeizedAssetsUSD != nil {
		t.Errorf("expected nil seized usd, got %v", *rec.SeizedAssetsUSD)
	}
}

func TestWireLiquidationNestedActors(t *testing.T) {
	raw := `{
		"id": "evt-2",
		"chainId": 8453,
		"timestamp": "1700000001",
		"protocol": "Morpho",
		"borrower": {"address": "0xnested-borrower"},
		"liquidator": {"address": "0xnested-liquidator"},
		"txHash": "0xtx2",
		"repaidAssetsUSD": "99.25"
	}`

	var wire WireLiquidation
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	rec := wire.Normalize()
	if rec.Borrower != "0xnested-borrower" {
		t.Errorf("nested borrower not flattened: %q", rec.Borrower)
	}
	if rec.Liquidator != "0xnested-liquidator" {
		t.Errorf("nested liquidator not flattened: %q", rec.Liquidator)
	}
	if rec.RepaidAssetsUSD == nil || *rec.RepaidAssetsUSD != 99.25 {
		t.Errorf("string usd not parsed: %v", rec.RepaidAssetsUSD)
	}
	if rec.CollateralAsset != "" || rec.DebtAsset != "" {
		t.Errorf("absent assets should normalise to empty strings")
	}
}

func TestWireUSDUnparseableString(t *testing.T) {
	var usd WireUSD
	if err := json.Unmarshal([]byte(`"not-a-number"`), &usd); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if usd.Value != nil {
		t.Errorf("unparseable usd should collapse to absent, got %v", *usd.Value)
	}
}

func TestTimestampUnix(t *testing.T) {
	rec := LiquidationRecord{Timestamp: "1700000000"}
	if rec.TimestampUnix() != 1700000000 {
		t.Errorf("unexpected parse: %d", rec.TimestampUnix())
	}

	// Malformed upstream timestamps must not crash anything downstream.
	rec.Timestamp = "soon"
	if rec.TimestampUnix() != 0 {
		t.Errorf("malformed timestamp should sort as zero")
	}
}
