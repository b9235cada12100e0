// Package poller drives the fetch-and-merge cycle against the indexer.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enviodev/liqo/internal/models"
	"github.com/enviodev/liqo/internal/store"
	"github.com/enviodev/liqo/logger"
)

// Fetcher provides recent liquidation records. Implemented by the indexer
// client.
type Fetcher interface {
	RecentLiquidations(ctx context.Context, limit int) ([]models.LiquidationRecord, error)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // poll period (default: 5s)
	Limit    int           // records per poll (default: 10)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Limit:    10,
	}
}

// Poller periodically refreshes the snapshot store from the indexer. Ticks
// that land while a fetch is still in flight are dropped, not queued, so at
// most one request is outstanding however slow the upstream gets.
type Poller struct {
	cfg      Config
	fetcher  Fetcher
	snapshot *store.SnapshotStore
	onUpdate func(count int)
	log      *logger.Log

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	inFlight atomic.Bool
	polls    atomic.Int64
	updates  atomic.Int64
}

// New constructs a poller writing accepted snapshots into snap. onUpdate
// (optional) is invoked after each accepted replacement.
func New(cfg Config, fetcher Fetcher, snap *store.SnapshotStore, onUpdate func(count int)) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	return &Poller{
		cfg:      cfg,
		fetcher:  fetcher,
		snapshot: snap,
		onUpdate: onUpdate,
		log:      logger.GetLogger(),
	}
}

// Start launches the poll loop, beginning with an immediate poll.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run()

	p.log.WithComponent("poller").WithFields(logger.Fields{
		"interval": p.cfg.Interval.String(),
		"limit":    p.cfg.Limit,
	}).Info("poller started")

	return nil
}

// Stop cancels the loop and waits for any in-flight poll to resolve. A late
// response is discarded by the post-fetch context check, never applied.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.log.WithComponent("poller").Info("poller stopped")
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start so the first snapshot does not wait a
	// full interval.
	p.dispatch()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.dispatch()
		}
	}
}

// dispatch starts one poll cycle unless a previous one is still in flight,
// in which case the tick is dropped rather than queued.
func (p *Poller) dispatch() {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.WithComponent("poller").Debug("previous fetch still in flight, dropping tick")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		p.poll()
	}()
}

func (p *Poller) poll() {
	p.polls.Add(1)
	log := p.log.WithComponent("poller")

	records, err := p.fetcher.RecentLiquidations(p.ctx, p.cfg.Limit)
	if err != nil {
		// Swallowed: the UI keeps showing the last good snapshot.
		log.WithError(err).Warn("poll failed, no update this cycle")
		return
	}

	if p.ctx.Err() != nil {
		log.Debug("poller stopped while fetch was in flight, discarding result")
		return
	}

	if !p.changed(records) {
		return
	}

	p.snapshot.Replace(records)
	p.updates.Add(1)
	if p.onUpdate != nil {
		p.onUpdate(len(records))
	}

	log.WithFields(logger.Fields{
		"records": len(records),
	}).Debug("snapshot updated")
}

// changed applies the O(1) update heuristic: a new result set is accepted
// only when its length differs from the held snapshot or its head id does.
// Interior-only changes are intentionally missed.
func (p *Poller) changed(records []models.LiquidationRecord) bool {
	if len(records) != p.snapshot.Len() {
		return true
	}
	return len(records) > 0 && records[0].ID != p.snapshot.HeadID()
}

// Stats reports poll and accepted-update counts.
func (p *Poller) Stats() (polls, updates int64) {
	return p.polls.Load(), p.updates.Load()
}
