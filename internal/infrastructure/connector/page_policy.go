package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/logger"
)

// PagePolicy retries the fetch of a single page.
// Rate limiting waits and retries without using up an attempt; transient
// I/O errors retry the same page up to MaxAttempts times.
type PagePolicy struct {
	MaxAttempts      int
	TransientCoolOff time.Duration
	RateLimitCoolOff time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewPagePolicy creates a policy from the sync settings
func NewPagePolicy(cfg config.SyncConfig) PagePolicy {
	p := PagePolicy{
		MaxAttempts:      cfg.PageRetryAttempts,
		TransientCoolOff: cfg.TransientCoolOff,
		RateLimitCoolOff: cfg.RateLimitCoolOff,
		sleep:            sleepContext,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	return p
}

// Fetch runs fn until it succeeds, fails permanently or ctx is done
func (p PagePolicy) Fetch(ctx context.Context, page string, fn func(context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := logger.FromContext(ctx)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, integration.ErrRateLimited):
			wait, ok := integration.RetryAfter(err)
			if !ok {
				wait = p.RateLimitCoolOff
			}
			log.Info("Rate limited, cooling off", zap.String("page", page), zap.Duration("cool_off", wait))
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		case errors.Is(err, integration.ErrTransientIO):
			attempt++
			if attempt >= p.MaxAttempts {
				return fmt.Errorf("page %s failed after %d attempts: %w", page, attempt, err)
			}
			log.Warn("Page fetch failed, retrying",
				zap.String("page", page),
				zap.Int("attempt", attempt),
				zap.Duration("cool_off", p.TransientCoolOff),
				zap.Error(err))
			if err := sleep(ctx, p.TransientCoolOff); err != nil {
				return err
			}
		default:
			return err
		}
	}
}
