package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// SyncJobStatus represents the status of a sync job
type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "PENDING"
	SyncJobStatusRunning   SyncJobStatus = "RUNNING"
	SyncJobStatusSucceeded SyncJobStatus = "SUCCEEDED"
	SyncJobStatusFailed    SyncJobStatus = "FAILED"
)

// Job triggers
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerConnect  = "connect"
)

// SyncJob is one bulk pull of one importer config
type SyncJob struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ConfigID    uuid.UUID
	Connector   integration.ConnectorName
	FullResync  bool
	Trigger     string
	Status      SyncJobStatus
	Error       string
	AuthFailed  bool
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	Result integration.SyncResult

	permanent bool
}

// NewSyncJob creates a pending job for cfg
func NewSyncJob(cfg *integration.ImporterConfig, fullResync bool, trigger string, maxRetries int) *SyncJob {
	return &SyncJob{
		ID:          uuid.New(),
		TenantID:    cfg.TenantID,
		ConfigID:    cfg.ID,
		Connector:   cfg.Connector,
		FullResync:  fullResync,
		Trigger:     trigger,
		Status:      SyncJobStatusPending,
		SubmittedAt: time.Now(),
		MaxRetries:  maxRetries,
	}
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Succeed marks the job as done and records what the run did
func (j *SyncJob) Succeed(result *integration.SyncResult) {
	now := time.Now()
	j.Status = SyncJobStatusSucceeded
	j.CompletedAt = &now
	if result != nil {
		j.Result = *result
	}
}

// Fail marks the job as failed. Authentication failures and disabled or
// unknown connectors are final.
func (j *SyncJob) Fail(err error) {
	now := time.Now()
	j.Status = SyncJobStatusFailed
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
		j.AuthFailed = errors.Is(err, integration.ErrAuth)
		j.permanent = j.AuthFailed ||
			errors.Is(err, ErrSyncConfigDisabled) ||
			errors.Is(err, integration.ErrConnectorNotFound)
	}
}

// ShouldRetry returns true if the job should be retried
func (j *SyncJob) ShouldRetry() bool {
	return j.Status == SyncJobStatusFailed && !j.permanent && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff
func (j *SyncJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = SyncJobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
	return delay
}

// IsFinished reports whether the job reached a terminal state
func (j *SyncJob) IsFinished() bool {
	return j.Status == SyncJobStatusSucceeded || j.Status == SyncJobStatusFailed
}

// ---------------------------------------------------------------------------
// SyncExecutor Interface
// ---------------------------------------------------------------------------

// SyncExecutor runs sync jobs
type SyncExecutor interface {
	// Execute runs the bulk pull of the job's config. The job is read-only
	// to the executor; the scheduler records the outcome.
	Execute(ctx context.Context, job SyncJob) (*integration.SyncResult, error)
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int
	// QueueSize is the capacity of the pending job queue
	QueueSize int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retries for failed jobs
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// HistorySize is how many finished jobs are kept for the admin API
	HistorySize int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: 4,
		QueueSize:         100,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
		HistorySize:       200,
	}
}

// SyncSchedulerConfigFrom maps application configuration onto the scheduler
func SyncSchedulerConfigFrom(cfg config.SchedulerConfig) SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		QueueSize:         cfg.QueueSize,
		JobTimeout:        cfg.JobTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
		HistorySize:       cfg.HistorySize,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.QueueSize <= 0 || c.HistorySize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler runs sync jobs on a worker pool. Jobs of different configs
// run concurrently; a config never has two jobs queued or running at once.
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor SyncExecutor
	logger   *zap.Logger

	jobs      chan *SyncJob
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	active    map[uuid.UUID]*SyncJob // by config id
	retries   map[uuid.UUID]*time.Timer

	historyMu sync.RWMutex
	history   []SyncJob
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(cfg SyncSchedulerConfig, executor SyncExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &SyncScheduler{
		config:   cfg,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *SyncJob, cfg.QueueSize),
		active:   make(map[uuid.UUID]*SyncJob),
		retries:  make(map[uuid.UUID]*time.Timer),
		history:  make([]SyncJob, 0, cfg.HistorySize),
	}, nil
}

// Start starts the worker pool
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(s.ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob queues a job. A config that already has a job queued or running
// is rejected with ErrSyncInProgress.
func (s *SyncScheduler) SubmitJob(job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, busy := s.active[job.ConfigID]; busy {
		return ErrSyncInProgress
	}
	if err := s.enqueueLocked(job); err != nil {
		return err
	}
	s.logger.Debug("Sync job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("connector", job.Connector.String()),
		zap.String("trigger", job.Trigger),
	)
	return nil
}

// Schedule builds and submits a job for cfg. The returned job is a copy taken
// at submission.
func (s *SyncScheduler) Schedule(cfg *integration.ImporterConfig, fullResync bool, trigger string) (*SyncJob, error) {
	job := NewSyncJob(cfg, fullResync, trigger, s.config.RetryAttempts)
	queued := *job
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return &queued, nil
}

// IsActive reports whether a config has a job queued or running
func (s *SyncScheduler) IsActive(configID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[configID]
	return ok
}

func (s *SyncScheduler) enqueueLocked(job *SyncJob) error {
	select {
	case s.jobs <- job:
		s.active[job.ConfigID] = job
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker processes jobs from the queue
func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	s.mu.Lock()
	job.Start()
	view := *job
	s.mu.Unlock()

	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("connector", job.Connector.String()),
	)
	log.Info("Processing sync job", zap.Bool("full_resync", job.FullResync), zap.Int("retry", job.RetryCount))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	result, err := s.executor.Execute(jobCtx, view)

	s.mu.Lock()
	if err != nil {
		job.Fail(err)
	} else {
		job.Succeed(result)
	}
	snapshot := *job
	retry := err != nil && job.ShouldRetry() && s.isRunning && ctx.Err() == nil
	var delay time.Duration
	if retry {
		delay = job.ScheduleRetry(s.config.RetryDelay)
		s.retries[job.ConfigID] = time.AfterFunc(delay, func() { s.resubmit(job) })
	} else {
		delete(s.active, job.ConfigID)
	}
	s.mu.Unlock()

	s.addToHistory(snapshot)

	switch {
	case err == nil:
		log.Info("Sync job succeeded",
			zap.Int("people", snapshot.Result.PeopleUpserted),
			zap.Int("organizations", snapshot.Result.OrganizationsUpserted),
			zap.Int("pages", snapshot.Result.Pages),
			zap.Int("skipped", snapshot.Result.Skipped),
		)
	case retry:
		log.Warn("Sync job failed, retry scheduled",
			zap.Error(err),
			zap.Int("retry_count", job.RetryCount),
			zap.Duration("delay", delay),
		)
	case snapshot.AuthFailed:
		log.Warn("Sync job failed authentication, not retried", zap.Error(err))
	default:
		log.Error("Sync job failed", zap.Error(err))
	}
}

func (s *SyncScheduler) resubmit(job *SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, job.ConfigID)
	if !s.isRunning {
		delete(s.active, job.ConfigID)
		return
	}
	select {
	case s.jobs <- job:
	default:
		delete(s.active, job.ConfigID)
		s.logger.Warn("Failed to re-queue sync job for retry", zap.String("job_id", job.ID.String()))
	}
}

// addToHistory records a finished attempt
func (s *SyncScheduler) addToHistory(job SyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]SyncJob{job}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// GetJobHistory returns recent finished attempts, newest first
func (s *SyncScheduler) GetJobHistory(limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByTenant returns a tenant's recent finished attempts
func (s *SyncScheduler) GetJobHistoryByTenant(tenantID uuid.UUID, limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]SyncJob, 0)
	for _, job := range s.history {
		if job.TenantID != tenantID {
			continue
		}
		result = append(result, job)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// ActiveJobs returns copies of the queued and running jobs of a tenant
func (s *SyncScheduler) ActiveJobs(tenantID uuid.UUID) []SyncJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]SyncJob, 0)
	for _, job := range s.active {
		if job.TenantID == tenantID {
			result = append(result, *job)
		}
	}
	return result
}
