package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridewire/dispatchsync/internal/logging"
	"github.com/ridewire/dispatchsync/internal/models"
)

// Poller errors.
var (
	ErrPollerAlreadyRunning = errors.New("poller already running")
	ErrPollerNotRunning     = errors.New("poller not running")
)

// Snapshotter fetches the polling-fallback view of unread messages.
type Snapshotter interface {
	GetUnreadSnapshot(ctx context.Context) ([]models.SnapshotEntry, error)
}

// PollerConfig contains configuration for the polling fallback.
type PollerConfig struct {
	// Interval is how often to poll for an unread snapshot while the
	// push channel is down. Default: 15s.
	Interval time.Duration
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 15 * time.Second,
	}
}

// Poller drives the polling fallback. It is the only polling timer in
// the process: every surface renders from the state this single loop
// maintains, so no two surfaces ever race each other with duplicate
// snapshot requests.
type Poller struct {
	config      PollerConfig
	router      *Router
	snapshotter Snapshotter
	logger      zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	kick    chan struct{}
}

// NewPoller creates a polling fallback feeding the given router.
func NewPoller(config PollerConfig, r *Router, snapshotter Snapshotter) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultPollerConfig().Interval
	}
	return &Poller{
		config:      config,
		router:      r,
		snapshotter: snapshotter,
		logger:      logging.Component("snapshot-poller"),
		kick:        make(chan struct{}, 1),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPollerAlreadyRunning
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.logger.Info().Dur("interval", p.config.Interval).Msg("snapshot poller starting")

	p.wg.Add(1)
	go p.runLoop()

	return nil
}

// Stop halts the polling loop.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPollerNotRunning
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info().Msg("snapshot poller stopped")
	return nil
}

// IsRunning returns true if the poller is running.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// PollNow triggers an immediate poll outside the regular interval, used
// for catch-up right after a reconnect.
func (p *Poller) PollNow() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) runLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollTick(false)
		case <-p.kick:
			p.pollTick(true)
		}
	}
}

// pollTick performs one polling cycle. Mark-read retries flush on every
// tick; the snapshot request itself only runs while the push channel is
// down (or when explicitly kicked after a reconnect, to cover anything
// that arrived during the gap).
func (p *Poller) pollTick(forced bool) {
	ctx := p.ctx

	p.router.engine.FlushPendingMarkReads(ctx)

	if p.router.Online() && !forced {
		return
	}

	entries, err := p.snapshotter.GetUnreadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Warn().Err(err).Msg("unread snapshot request failed")
		return
	}

	p.router.HandleSnapshot(ctx, entries)
}
