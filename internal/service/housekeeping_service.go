package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/lock"
	"github.com/paragon-edu/gatehouse/internal/metrics"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// Housekeeper runs periodic maintenance: archiving expired entitlements
// and pruning visitor rows of long-expired links. A distributed lock
// keeps the sweep on a single replica.
type Housekeeper struct {
	linkRepo repository.AccessLinkRepository
	prepRepo repository.PrepAccessRepository
	locker   lock.Locker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	config   HousekeepingConfig

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// HousekeepingConfig contains sweep configuration.
type HousekeepingConfig struct {
	// Interval is how often to run a sweep.
	Interval time.Duration

	// VisitorRetention is how long visitor rows of expired links are
	// kept before pruning.
	VisitorRetention time.Duration

	// LockTTL bounds how long one instance may hold the sweep lock.
	LockTTL time.Duration
}

// DefaultHousekeepingConfig returns sensible defaults.
func DefaultHousekeepingConfig() HousekeepingConfig {
	return HousekeepingConfig{
		Interval:         1 * time.Hour,
		VisitorRetention: 30 * 24 * time.Hour,
		LockTTL:          5 * time.Minute,
	}
}

// NewHousekeeper creates a new housekeeper.
func NewHousekeeper(
	linkRepo repository.AccessLinkRepository,
	prepRepo repository.PrepAccessRepository,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config HousekeepingConfig,
) *Housekeeper {
	return &Housekeeper{
		linkRepo: linkRepo,
		prepRepo: prepRepo,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "housekeeping").Logger(),
		config:   config,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the sweep scheduler.
func (h *Housekeeper) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info().
		Dur("interval", h.config.Interval).
		Dur("visitor_retention", h.config.VisitorRetention).
		Msg("starting housekeeper")

	go h.runLoop()
}

// Stop stops the sweep scheduler and waits for the loop to exit.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.stopChan)
	<-h.doneChan

	h.logger.Info().Msg("housekeeper stopped")
}

// runLoop is the main sweep loop.
func (h *Housekeeper) runLoop() {
	defer close(h.doneChan)

	// Run immediately on start
	h.RunOnce(context.Background())

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.RunOnce(context.Background())
		case <-h.stopChan:
			return
		}
	}
}

// SweepResult contains the result of one sweep.
type SweepResult struct {
	// Archived is the number of entitlements flipped to archived.
	Archived int64

	// VisitorsPruned is the number of visitor rows removed.
	VisitorsPruned int64

	// Skipped reports the sweep was not run because another replica
	// holds the lock.
	Skipped bool

	// Duration is how long the sweep took.
	Duration time.Duration
}

// RunOnce executes a single sweep. Called by the scheduler and usable
// directly from the admin CLI.
func (h *Housekeeper) RunOnce(ctx context.Context) SweepResult {
	start := time.Now()
	result := SweepResult{}

	lockKey := lock.Keys.HousekeepingSweep()
	acquired, err := h.locker.Acquire(ctx, lockKey, h.config.LockTTL)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to acquire sweep lock")
		h.recordSweep("error")
		result.Duration = time.Since(start)
		return result
	}
	if !acquired {
		h.logger.Debug().Msg("sweep lock held by another replica, skipping")
		h.recordSweep("skipped")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if _, err := h.locker.Release(ctx, lockKey); err != nil {
			h.logger.Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	now := time.Now().UTC()
	failed := false

	archived, err := h.prepRepo.ArchiveExpired(ctx, now)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to archive expired entitlements")
		failed = true
	}
	result.Archived = archived

	cutoff := now.Add(-h.config.VisitorRetention)
	pruned, err := h.linkRepo.PruneVisitors(ctx, cutoff)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to prune visitor rows")
		failed = true
	}
	result.VisitorsPruned = pruned

	result.Duration = time.Since(start)
	if failed {
		h.recordSweep("error")
	} else {
		h.recordSweep("ok")
	}

	h.logger.Info().
		Int64("archived", result.Archived).
		Int64("visitors_pruned", result.VisitorsPruned).
		Dur("duration", result.Duration).
		Msg("housekeeping sweep completed")

	return result
}

func (h *Housekeeper) recordSweep(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordSweep(outcome)
	}
}
