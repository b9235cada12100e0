// Package indexer is a GraphQL client for the upstream liquidation indexer,
// the service of record for cross-chain liquidation events. The indexer
// endpoint is never exposed to browsers; every query flows through here.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/enviodev/liqo/internal/models"
)

// MaxLimit caps the number of records any single query may request.
const MaxLimit = 10000

// Client issues GraphQL queries against the indexer endpoint.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new indexer client. graphqlURL is the Hasura-style
// endpoint, e.g. "http://localhost:8080/v1/graphql".
func NewClient(graphqlURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const recentLiquidationsQuery = `
	query RecentLiquidations($limit: Int!) {
		GeneralizedLiquidation(limit: $limit, order_by: { timestamp: desc }) {
			id
			chainId
			timestamp
			protocol
			borrower
			liquidator
			txHash
			collateralAsset
			debtAsset
			repaidAssets
			seizedAssets
			repaidAssetsUSD
			seizedAssetsUSD
		}
	}
`

// RecentLiquidations fetches up to limit records ordered by timestamp
// descending. The limit is clamped to [1, MaxLimit].
func (c *Client) RecentLiquidations(ctx context.Context, limit int) ([]models.LiquidationRecord, error) {
	limit = ClampLimit(limit, 1, MaxLimit)

	respData, err := c.doQuery(ctx, recentLiquidationsQuery, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch recent liquidations: %w", err)
	}

	var result struct {
		GeneralizedLiquidation []models.WireLiquidation `json:"GeneralizedLiquidation"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode recent liquidations: %w", err)
	}

	return models.NormalizeAll(result.GeneralizedLiquidation), nil
}

const leaderboardQuery = `
	query Leaderboard($limit: Int!) {
		Liquidator(order_by: { totalLiquidations: desc }, limit: $limit) {
			id
			liquidator
			chainId
			aaveLiquidations
			eulerLiquidations
			morphoLiquidations
			totalLiquidations
			firstLiquidationTimestamp
			lastLiquidationTimestamp
		}
	}
`

// Leaderboard fetches the per-liquidator ranking, limited to [1, 100].
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]models.LiquidatorRow, error) {
	limit = ClampLimit(limit, 50, 100)

	respData, err := c.doQuery(ctx, leaderboardQuery, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch leaderboard: %w", err)
	}

	var result struct {
		Liquidator []models.LiquidatorRow `json:"Liquidator"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode leaderboard: %w", err)
	}

	return result.Liquidator, nil
}

const statsQuery = `
	query Stats {
		LiquidationStats(limit: 1, order_by: { id: desc }) {
			id
			chainId
			aaveCount
			eulerCount
			morphoCount
			totalCount
		}
	}
`

// Stats fetches the current aggregate-statistics record, or nil when the
// indexer has none yet.
func (c *Client) Stats(ctx context.Context) (*models.LiquidationStats, error) {
	respData, err := c.doQuery(ctx, statsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch stats: %w", err)
	}

	var result struct {
		LiquidationStats []models.LiquidationStats `json:"LiquidationStats"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode stats: %w", err)
	}

	if len(result.LiquidationStats) == 0 {
		return nil, nil
	}
	return &result.LiquidationStats[0], nil
}

// Forward relays an arbitrary query body to the indexer and returns the
// upstream status and body verbatim. It backs the browser-facing proxy
// endpoint, so it deliberately performs no envelope validation.
func (c *Client) Forward(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("indexer: create forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("indexer: forward request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("indexer: read forward response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// ClampLimit coerces an externally supplied limit into [1, max], falling
// back to fallback when the input is not positive.
func ClampLimit(requested, fallback, max int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested < 1 {
		requested = 1
	}
	if requested > max {
		requested = max
	}
	return requested
}

// doQuery executes a GraphQL query against the indexer endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
