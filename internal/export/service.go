// Package export turns indexer snapshots into downloadable CSV files.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/enviodev/liqo/internal/indexer"
	"github.com/enviodev/liqo/internal/models"
	"github.com/enviodev/liqo/logger"
)

// DefaultLimit is used when an export request carries no usable limit.
const DefaultLimit = 1000

// ErrUpstream marks failures of the indexer fetch, as opposed to local CSV
// generation failures. Handlers map it to 502.
var ErrUpstream = errors.New("upstream request failed")

// Fetcher provides the records to export. Implemented by the indexer client.
type Fetcher interface {
	RecentLiquidations(ctx context.Context, limit int) ([]models.LiquidationRecord, error)
}

// Archiver persists a copy of every generated export. Optional.
type Archiver interface {
	Archive(ctx context.Context, filename string, data []byte) error
}

// Service produces CSV exports on explicit user action. Exports run outside
// the poll loop and always fetch fresh data.
type Service struct {
	fetcher      Fetcher
	archiver     Archiver
	defaultLimit int
	log          *logger.Log
}

// NewService creates an export service. archiver may be nil; defaultLimit
// falls back to DefaultLimit when not positive.
func NewService(fetcher Fetcher, archiver Archiver, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Service{
		fetcher:      fetcher,
		archiver:     archiver,
		defaultLimit: defaultLimit,
		log:          logger.GetLogger(),
	}
}

// Export fetches up to limit records and renders them as CSV bytes. The
// returned filename embeds the effective (clamped) limit.
func (s *Service) Export(ctx context.Context, limit int) ([]byte, string, error) {
	limit = indexer.ClampLimit(limit, s.defaultLimit, indexer.MaxLimit)
	filename := fmt.Sprintf("liqo_recent_%d.csv", limit)

	records, err := s.fetcher.RecentLiquidations(ctx, limit)
	if err != nil {
		return nil, "", fmt.Errorf("export: %w: %v", ErrUpstream, err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, "", err
	}
	data := buf.Bytes()

	if s.archiver != nil {
		// Archive failures never block the download.
		if err := s.archiver.Archive(ctx, filename, data); err != nil {
			s.log.WithComponent("export").WithError(err).Warn("failed to archive export")
		}
	}

	return data, filename, nil
}
