package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
)

// Poll defaults observed in production: 60 attempts five seconds apart.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollAttempts = 60
)

// StatusFetcher returns the current state of a job.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (*Job, error)
}

// Poller follows a job to a terminal state on a fixed interval. It never
// retries a failed status call and applies no backoff or jitter.
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxAttempts int
	log         *logger.Logger
}

// NewPoller creates a Poller. Non-positive values fall back to the defaults.
func NewPoller(fetcher StatusFetcher, interval time.Duration, maxAttempts int, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPollAttempts
	}

	return &Poller{
		fetcher:     fetcher,
		interval:    interval,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Wait polls until the job completes, fails or the attempt ceiling is
// reached. The returned job is always non-nil when the error is a job
// outcome (ErrJobFailed, ErrJobCancelled, ErrTimeout) so callers can show the
// final state. Cancelling ctx aborts the wait between or during calls.
func (p *Poller) Wait(ctx context.Context, job *Job) (*Job, error) {
	current := job

	for !current.Status.Terminal() {
		if current.Attempts >= p.maxAttempts {
			lastStatus := current.Status
			current.Status = StatusTimedOut

			return current, fmt.Errorf("%w: job %s still %s after %d attempts",
				ErrTimeout, current.ID, lastStatus, current.Attempts)
		}

		if current.Attempts > 0 {
			sleepErr := p.sleep(ctx)
			if sleepErr != nil {
				return current, sleepErr
			}
		}

		next, err := p.fetcher.Status(ctx, current.ID)
		if err != nil {
			return current, fmt.Errorf("status check failed for job %s: %w", current.ID, err)
		}

		next.Attempts = current.Attempts + 1
		current = next

		p.logf("Job %s status: %s (attempt %d/%d)", current.ID, current.Status, current.Attempts, p.maxAttempts)
	}

	return current, terminalError(current)
}

func (p *Poller) sleep(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("polling aborted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (p *Poller) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Info(format, args...)
	}
}

// terminalError maps a terminal state to its error, nil for COMPLETED.
func terminalError(job *Job) error {
	switch job.Status {
	case StatusCompleted:
		return nil
	case StatusFailed:
		return fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
	case StatusCancelled:
		return fmt.Errorf("%w: job %s", ErrJobCancelled, job.ID)
	case StatusTimedOut:
		return fmt.Errorf("%w: job %s reported by service", ErrTimeout, job.ID)
	case StatusQueued, StatusInProgress:
		return fmt.Errorf("%w: job %s is not terminal", ErrProtocol, job.ID)
	default:
		return fmt.Errorf("%w: job %s has unknown status %q", ErrProtocol, job.ID, job.Status)
	}
}
