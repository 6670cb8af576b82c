// Package worker consumes the job queue and dispatches jobs to the
// fulfillment orchestrator. Concurrency is bounded by a weighted semaphore
// and job starts are paced by a token bucket, so a burst of scheduler
// enqueues cannot stampede the payment and lock providers.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"guestflow/internal/config"
	"guestflow/internal/queue"
	"guestflow/internal/types"
)

// Orchestrator is the narrow fulfillment interface the pool dispatches to.
type Orchestrator interface {
	// Fulfill runs the full pipeline for a reservation.
	Fulfill(ctx context.Context, reservationID int64, override *types.ContactOverride) (*types.FulfillmentResult, error)

	// IssueAccessAndNotify runs the access-code and notification steps only,
	// after a successful payment.
	IssueAccessAndNotify(ctx context.Context, reservationID int64, override *types.ContactOverride) (*types.FulfillmentResult, error)

	// UpdateContactAndFulfill persists corrected contact details and re-runs
	// the pipeline with them.
	UpdateContactAndFulfill(ctx context.Context, reservationID int64, override *types.ContactOverride) (*types.FulfillmentResult, error)

	// SendCheckInConfirmation sends the welcome message for a checked-in
	// reservation.
	SendCheckInConfirmation(ctx context.Context, reservationID int64) (*types.FulfillmentResult, error)
}

// JobQueue is the consumer side of the queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Nack(ctx context.Context, job *queue.Job, jobErr error) error
}

// Pool runs the consume loop.
type Pool struct {
	queue   JobQueue
	orch    Orchestrator
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  types.Logger
}

// NewPool creates a worker pool with concurrency and rate limits taken from
// the queue configuration.
func NewPool(q JobQueue, orch Orchestrator, cfg config.QueueConfig, logger types.Logger) *Pool {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	burst := int(cfg.JobsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Pool{
		queue:   q,
		orch:    orch,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		limiter: rate.NewLimiter(rate.Limit(cfg.JobsPerSec), burst),
		logger:  logger,
	}
}

// Run consumes jobs until the context is cancelled, then waits for in-flight
// jobs to finish.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			// Pace and reserve a slot before taking a job, so nothing sits
			// claimed in the processing list while we wait.
			if err := p.limiter.Wait(gctx); err != nil {
				return nil
			}
			if err := p.sem.Acquire(gctx, 1); err != nil {
				return nil
			}

			job, err := p.queue.Dequeue(gctx)
			if err != nil {
				p.sem.Release(1)
				if gctx.Err() != nil {
					return nil
				}
				p.logger.Error("failed to dequeue job", "error", err)
				continue
			}
			if job == nil {
				p.sem.Release(1)
				continue
			}

			g.Go(func() error {
				defer p.sem.Release(1)
				p.process(gctx, job)
				return nil
			})
		}
	})

	return g.Wait()
}

func (p *Pool) process(ctx context.Context, job *queue.Job) {
	payload := job.Payload
	log := p.logger.With(
		"job_id", payload.JobID,
		"job_type", string(payload.Type),
		"reservation_id", payload.ReservationID,
	)

	err := p.Handle(ctx, payload)
	if err == nil {
		if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
			log.Error("failed to ack completed job", "error", ackErr)
		}
		return
	}

	log.Warn("job failed", "attempt", payload.Attempt, "retryable", types.IsRetryable(err), "error", err)
	if nackErr := p.queue.Nack(ctx, job, err); nackErr != nil {
		log.Error("failed to nack job", "error", nackErr)
	}
}

// Handle routes one payload to the orchestrator. It doubles as the inline
// handler when queueing is disabled.
func (p *Pool) Handle(ctx context.Context, payload types.JobPayload) error {
	switch payload.Type {
	case types.JobFulfillReservation:
		_, err := p.orch.Fulfill(ctx, payload.ReservationID, payload.Override)
		return err
	case types.JobIssueAccess:
		_, err := p.orch.IssueAccessAndNotify(ctx, payload.ReservationID, payload.Override)
		return err
	case types.JobUpdateGuestContact:
		_, err := p.orch.UpdateContactAndFulfill(ctx, payload.ReservationID, payload.Override)
		return err
	case types.JobSendCheckInConfirmation:
		_, err := p.orch.SendCheckInConfirmation(ctx, payload.ReservationID)
		return err
	default:
		return types.NewAppError(types.ErrCodeValidationBadPayload,
			"unknown job type: "+string(payload.Type), nil)
	}
}
