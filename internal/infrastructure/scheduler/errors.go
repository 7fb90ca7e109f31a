package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrSyncInProgress is returned when a config already has a job queued or running
	ErrSyncInProgress = errors.New("sync already in progress for this importer config")

	// ErrSyncConfigDisabled is returned when a sync is requested for a disabled config
	ErrSyncConfigDisabled = errors.New("importer config is disabled")
)
