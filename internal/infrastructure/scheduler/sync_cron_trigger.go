package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
)

// SyncCronTrigger submits a job for every enabled importer config whose sync
// interval elapsed. Configs whose last run failed authentication wait for a
// reconnect instead of being pulled again.
type SyncCronTrigger struct {
	checkInterval time.Duration
	scheduler     *SyncScheduler
	configs       integration.ImporterConfigRepository
	logger        *zap.Logger
	now           func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Track last scheduled time per config to avoid duplicate scheduling
	lastScheduledMu sync.RWMutex
	lastScheduled   map[uuid.UUID]time.Time
}

// NewSyncCronTrigger creates a new sync cron trigger
func NewSyncCronTrigger(
	checkInterval time.Duration,
	scheduler *SyncScheduler,
	configs integration.ImporterConfigRepository,
	logger *zap.Logger,
) *SyncCronTrigger {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &SyncCronTrigger{
		checkInterval: checkInterval,
		scheduler:     scheduler,
		configs:       configs,
		logger:        logger,
		now:           time.Now,
		lastScheduled: make(map[uuid.UUID]time.Time),
	}
}

// Start starts the cron trigger
func (c *SyncCronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sync cron trigger started", zap.Duration("check_interval", c.checkInterval))
	return nil
}

// Stop stops the cron trigger
func (c *SyncCronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncCronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	c.CheckAndSchedule(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAndSchedule(ctx)
		}
	}
}

// CheckAndSchedule runs one pass over the enabled configs and returns how many
// jobs it submitted
func (c *SyncCronTrigger) CheckAndSchedule(ctx context.Context) int {
	configs, err := c.configs.FindEnabled(ctx, nil, nil)
	if err != nil {
		c.logger.Error("Failed to load enabled importer configs", zap.Error(err))
		return 0
	}

	now := c.now()
	submitted := 0
	for i := range configs {
		cfg := &configs[i]
		if !c.isDue(cfg, now) {
			continue
		}

		_, err := c.scheduler.Schedule(cfg, false, TriggerSchedule)
		switch {
		case err == nil:
			submitted++
			c.setLastScheduled(cfg.ID, now)
		case errors.Is(err, ErrSyncInProgress):
			// still running from an earlier tick or a manual trigger
		default:
			c.logger.Error("Failed to schedule sync job",
				zap.String("tenant_id", cfg.TenantID.String()),
				zap.String("connector", cfg.Connector.String()),
				zap.Error(err),
			)
		}
	}

	if submitted > 0 {
		c.logger.Debug("Sync jobs scheduled", zap.Int("count", submitted), zap.Int("configs", len(configs)))
	}
	return submitted
}

func (c *SyncCronTrigger) isDue(cfg *integration.ImporterConfig, now time.Time) bool {
	if !cfg.Enabled || cfg.LastSyncStatus == integration.SyncStatusAuthFailed {
		return false
	}
	interval := cfg.SyncInterval()

	c.lastScheduledMu.RLock()
	last, ok := c.lastScheduled[cfg.ID]
	c.lastScheduledMu.RUnlock()
	if ok && now.Sub(last) < interval {
		return false
	}

	return cfg.LastSyncedAt == nil || now.Sub(*cfg.LastSyncedAt) >= interval
}

func (c *SyncCronTrigger) setLastScheduled(configID uuid.UUID, t time.Time) {
	c.lastScheduledMu.Lock()
	c.lastScheduled[configID] = t
	c.lastScheduledMu.Unlock()
}

// TriggerManualSync schedules an immediate run of a tenant's connector
func (c *SyncCronTrigger) TriggerManualSync(
	ctx context.Context,
	tenantID uuid.UUID,
	connector integration.ConnectorName,
	fullResync bool,
) (*SyncJob, error) {
	cfg, err := c.configs.FindByTenantAndConnector(ctx, tenantID, connector)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, ErrSyncConfigDisabled
	}

	job, err := c.scheduler.Schedule(cfg, fullResync, TriggerManual)
	if err != nil {
		return nil, err
	}
	c.setLastScheduled(cfg.ID, c.now())

	c.logger.Info("Manual sync triggered",
		zap.String("tenant_id", tenantID.String()),
		zap.String("connector", connector.String()),
		zap.Bool("full_resync", fullResync),
		zap.String("job_id", job.ID.String()),
	)
	return job, nil
}

// SchedulerStats summarizes the scheduler for the admin API
type SchedulerStats struct {
	Running        bool `json:"running"`
	Workers        int  `json:"workers"`
	ActiveJobs     int  `json:"active_jobs"`
	TrackedConfigs int  `json:"tracked_configs"`
}

// Stats returns scheduler statistics
func (c *SyncCronTrigger) Stats() SchedulerStats {
	c.lastScheduledMu.RLock()
	tracked := len(c.lastScheduled)
	c.lastScheduledMu.RUnlock()

	c.scheduler.mu.Lock()
	active := len(c.scheduler.active)
	c.scheduler.mu.Unlock()

	return SchedulerStats{
		Running:        c.scheduler.IsRunning(),
		Workers:        c.scheduler.config.MaxConcurrentJobs,
		ActiveJobs:     active,
		TrackedConfigs: tracked,
	}
}
