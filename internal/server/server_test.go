package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/enviodev/liqo/config"
	"github.com/enviodev/liqo/internal/export"
	"github.com/enviodev/liqo/internal/indexer"
	"github.com/enviodev/liqo/internal/models"
	"github.com/enviodev/liqo/internal/store"
)

func newTestServer(upstreamURL string, exportCfg config.ExportConfig, seed []models.LiquidationRecord) *Server {
	client := indexer.NewClient(upstreamURL, "", time.Second)
	exporter := export.NewService(client, nil, exportCfg.DefaultLimit)
	if exportCfg.RatePerSec <= 0 {
		exportCfg.RatePerSec = 1000
	}
	if exportCfg.RateBurst <= 0 {
		exportCfg.RateBurst = 1000
	}
	return NewServer(
		config.ServerConfig{Address: ":0"},
		exportCfg,
		store.NewSnapshotStore(seed),
		client,
		exporter,
		nil,
	)
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":           "0.0.0.0:3000",
		":9090":      "0.0.0.0:9090",
		"localhost":  "localhost:3000",
		"0.0.0.0:80": "0.0.0.0:80",
		"*:8080":     "0.0.0.0:8080",
	}
	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExportRejectsInvalidEmailBeforeUpstream(t *testing.T) {
	var upstreamHits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits.Add(1)
		w.Write([]byte(`{"data":{"GeneralizedLiquidation":[]}}`))
	}))
	defer upstream.Close()

	srv := newTestServer(upstream.URL, config.ExportConfig{RequireEmail: true, DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/export?email=not-an-email", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Valid email is required" {
		t.Errorf("unexpected error body: %v", body)
	}
	if upstreamHits.Load() != 0 {
		t.Errorf("invalid email must not trigger an upstream request")
	}
}

func TestExportEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"GeneralizedLiquidation":[
			{"id":"a","chainId":1,"timestamp":"100","protocol":"Aave",
			 "borrower":"0xb1","liquidator":"0xl1","txHash":"0xt1"},
			{"id":"b","chainId":8453,"timestamp":"90","protocol":"Morpho",
			 "borrower":"0xb2","liquidator":"0xl2","txHash":"0xt2"}
		]}}`))
	}))
	defer upstream.Close()

	srv := newTestServer(upstream.URL, config.ExportConfig{RequireEmail: true, DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/export?email=user@example.com&limit=2", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("unexpected content type: %s", ct)
	}
	if cd := res.Header().Get("Content-Disposition"); !strings.Contains(cd, `"liqo_recent_2.csv"`) {
		t.Errorf("unexpected content disposition: %s", cd)
	}
	if cc := res.Header().Get("Cache-Control"); cc != "no-store, max-age=0" {
		t.Errorf("caching should be disabled: %s", cc)
	}

	body := res.Body.String()
	if !strings.HasPrefix(body, "\ufeff") {
		t.Fatalf("csv missing BOM")
	}
	lines := strings.Split(strings.TrimRight(strings.TrimPrefix(body, "\ufeff"), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(lines))
	}
	// Rows keep upstream order; chainId is a bare number and absent USD
	// fields are empty strings.
	if !strings.HasPrefix(lines[1], "100,Aave,") || !strings.HasSuffix(lines[1], ",1") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], "90,Morpho,") || !strings.HasSuffix(lines[2], ",8453") {
		t.Errorf("unexpected second row: %s", lines[2])
	}
}

func TestExportUpstreamFailureIs502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	srv := newTestServer(upstream.URL, config.ExportConfig{DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/export?limit=5", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Upstream request failed") {
		t.Errorf("unexpected error body: %s", res.Body.String())
	}
}

func TestExportRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"GeneralizedLiquidation":[]}}`))
	}))
	defer upstream.Close()

	srv := newTestServer(upstream.URL, config.ExportConfig{DefaultLimit: 1000, RatePerSec: 0.001, RateBurst: 1}, nil)
	router := srv.buildRouter()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/export", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first export should pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/export", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second export should be rate limited, got %d", second.Code)
	}
}

func TestProxyRejectsNonPOST(t *testing.T) {
	srv := newTestServer("http://127.0.0.1:0", config.ExportConfig{DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/graphql", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestProxyUnreachableUpstreamIs502(t *testing.T) {
	// An upstream that is already closed is unreachable.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	srv := newTestServer(url, config.ExportConfig{DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/graphql", strings.NewReader(`{"query":"{ x }"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}

func TestProxyPassesStatusAndBodyVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"denied"}]}`))
	}))
	defer upstream.Close()

	srv := newTestServer(upstream.URL, config.ExportConfig{DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/graphql", strings.NewReader(`{"query":"{ x }"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("status not passed through: %d", res.Code)
	}
	if res.Body.String() != `{"errors":[{"message":"denied"}]}` {
		t.Errorf("body not passed through: %s", res.Body.String())
	}
}

func TestLiquidationsListingAppliesQuery(t *testing.T) {
	seed := []models.LiquidationRecord{
		{ID: "a", ChainID: 1, Timestamp: "300", Protocol: "Aave", Borrower: "0xAAA"},
		{ID: "b", ChainID: 8453, Timestamp: "200", Protocol: "Morpho", Borrower: "0xBBB"},
		{ID: "c", ChainID: 1, Timestamp: "100", Protocol: "Euler", Borrower: "0xCCC"},
	}
	srv := newTestServer("http://127.0.0.1:0", config.ExportConfig{DefaultLimit: 1000}, seed)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/liquidations?chain=1&page_size=25", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body struct {
		Rows     []models.LiquidationRecord `json:"rows"`
		Total    int                        `json:"total"`
		PageSize int                        `json:"pageSize"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Total != 2 {
		t.Errorf("chain filter not applied: total=%d", body.Total)
	}
	if body.PageSize != 25 {
		t.Errorf("page size not echoed: %d", body.PageSize)
	}
	// Default sort is timestamp descending.
	if len(body.Rows) != 2 || body.Rows[0].ID != "a" || body.Rows[1].ID != "c" {
		t.Errorf("unexpected rows: %+v", body.Rows)
	}
}

func TestLeaderboardClampsLimit(t *testing.T) {
	var gotLimit atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if v, ok := req.Variables["limit"].(float64); ok {
			gotLimit.Store(int64(v))
		}
		w.Write([]byte(`{"data":{"Liquidator":[]}}`))
	}))
	defer upstream.Close()

	srv := newTestServer(upstream.URL, config.ExportConfig{DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=500", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if gotLimit.Load() != 100 {
		t.Errorf("limit not clamped to 100: %d", gotLimit.Load())
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	if gotLimit.Load() != 50 {
		t.Errorf("missing limit should default to 50: %d", gotLimit.Load())
	}
}

func TestStatsUpstreamFailureIs502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	srv := newTestServer(upstream.URL, config.ExportConfig{DefaultLimit: 1000}, nil)
	router := srv.buildRouter()

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}
