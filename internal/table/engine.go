// Package table implements the pure filter/sort/page pipeline applied to a
// snapshot before rendering. Nothing here touches shared state; every
// function takes records in and hands records out.
package table

import (
	"sort"
	"strings"

	"github.com/enviodev/liqo/internal/models"
)

// Sort keys. There is always exactly one active sort column; "unsorted" is
// not a reachable state.
const (
	SortTimestamp = "timestamp"
	SortProtocol  = "protocol"
	SortChainID   = "chainId"
	SortRepaidUSD = "repaidAssetsUSD"
	SortSeizedUSD = "seizedAssetsUSD"
)

// PageSizes is the fixed page-size menu.
var PageSizes = []int{5, 10, 25, 50, 100}

// DefaultPageSize is used when the requested size is not on the menu.
const DefaultPageSize = 10

// Query is one user-selected view over the snapshot.
type Query struct {
	Search    string
	Protocols []string
	ChainIDs  []int64
	SortKey   string
	SortAsc   bool
	Page      int
	PageSize  int
}

// Result is the rendered page plus the metadata filter menus need.
type Result struct {
	Rows           []models.LiquidationRecord
	TotalMatched   int
	Page           int
	PageSize       int
	ProtocolCounts map[string]int
	ChainCounts    map[int64]int
}

// Apply runs the full pipeline: filters, facet counts, sort, paginate.
func Apply(records []models.LiquidationRecord, q Query) Result {
	q = normalizeQuery(q)

	matched := Filter(records, q)

	result := Result{
		TotalMatched:   len(matched),
		Page:           q.Page,
		PageSize:       q.PageSize,
		ProtocolCounts: ProtocolCounts(records, q),
		ChainCounts:    ChainCounts(records, q),
	}

	Sort(matched, q.SortKey, q.SortAsc)
	result.Rows = Paginate(matched, q.Page, q.PageSize)
	return result
}

func normalizeQuery(q Query) Query {
	if q.SortKey == "" {
		q.SortKey = SortTimestamp
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if !validPageSize(q.PageSize) {
		q.PageSize = DefaultPageSize
	}
	return q
}

func validPageSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// Filter returns the records matching every active predicate. Predicates
// compose with AND; an empty predicate matches everything.
func Filter(records []models.LiquidationRecord, q Query) []models.LiquidationRecord {
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.LiquidationRecord, 0, len(records))
	for _, rec := range records {
		if !matchesSearch(rec, needle) {
			continue
		}
		if !matchesProtocols(rec, q.Protocols) {
			continue
		}
		if !matchesChains(rec, q.ChainIDs) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// matchesSearch is a case-insensitive substring match against the
// concatenation of the six searchable fields. Absent optionals contribute
// an empty string.
func matchesSearch(rec models.LiquidationRecord, needle string) bool {
	if needle == "" {
		return true
	}
	haystack := strings.ToLower(strings.Join([]string{
		rec.Borrower,
		rec.Liquidator,
		rec.Protocol,
		rec.TxHash,
		rec.CollateralAsset,
		rec.DebtAsset,
	}, "\n"))
	return strings.Contains(haystack, needle)
}

func matchesProtocols(rec models.LiquidationRecord, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, p := range selected {
		if rec.Protocol == p {
			return true
		}
	}
	return false
}

func matchesChains(rec models.LiquidationRecord, selected []int64) bool {
	if len(selected) == 0 {
		return true
	}
	for _, id := range selected {
		if rec.ChainID == id {
			return true
		}
	}
	return false
}

// Sort orders records in place by the given key. The sort is stable so that
// upstream's timestamp-descending delivery survives ties.
func Sort(records []models.LiquidationRecord, key string, asc bool) {
	less := lessFunc(key)
	sort.SliceStable(records, func(i, j int) bool {
		if asc {
			return less(records[i], records[j])
		}
		return less(records[j], records[i])
	})
}

func lessFunc(key string) func(a, b models.LiquidationRecord) bool {
	switch key {
	case SortProtocol:
		return func(a, b models.LiquidationRecord) bool {
			return strings.ToLower(a.Protocol) < strings.ToLower(b.Protocol)
		}
	case SortChainID:
		return func(a, b models.LiquidationRecord) bool {
			return a.ChainID < b.ChainID
		}
	case SortRepaidUSD:
		return func(a, b models.LiquidationRecord) bool {
			return usdValue(a.RepaidAssetsUSD) < usdValue(b.RepaidAssetsUSD)
		}
	case SortSeizedUSD:
		return func(a, b models.LiquidationRecord) bool {
			return usdValue(a.SeizedAssetsUSD) < usdValue(b.SeizedAssetsUSD)
		}
	default:
		return func(a, b models.LiquidationRecord) bool {
			return a.TimestampUnix() < b.TimestampUnix()
		}
	}
}

// Absent USD valuations sort below every reported value.
func usdValue(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

// Paginate returns the 1-based page of the given size. A page beyond the end
// is empty; the last page may be short. No re-fetch happens here — asking
// for more rows than are loaded just yields what is loaded.
func Paginate(records []models.LiquidationRecord, page, size int) []models.LiquidationRecord {
	if page < 1 {
		page = 1
	}
	if !validPageSize(size) {
		size = DefaultPageSize
	}

	start := (page - 1) * size
	if start >= len(records) {
		return []models.LiquidationRecord{}
	}
	end := start + size
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

// ProtocolCounts counts matches per protocol with every filter applied
// EXCEPT the protocol selection itself, so the protocol menu can annotate
// options the user has not picked yet.
func ProtocolCounts(records []models.LiquidationRecord, q Query) map[string]int {
	scoped := q
	scoped.Protocols = nil

	counts := make(map[string]int)
	for _, rec := range Filter(records, scoped) {
		counts[rec.Protocol]++
	}
	return counts
}

// ChainCounts mirrors ProtocolCounts for the chain menu.
func ChainCounts(records []models.LiquidationRecord, q Query) map[int64]int {
	scoped := q
	scoped.ChainIDs = nil

	counts := make(map[int64]int)
	for _, rec := range Filter(records, scoped) {
		counts[rec.ChainID]++
	}
	return counts
}
