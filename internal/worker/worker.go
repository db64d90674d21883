// Package worker runs the notification consumers: each worker pulls one
// job at a time from the durable queue, invokes the dispatcher, and either
// completes the job, schedules a backed-off retry, or dead-letters it.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
	"github.com/bharatranastudy/outbreak-alerts/internal/queue"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, recipient, message string) (string, error)
}

type Options struct {
	Workers         int
	MaxAttempts     int
	RetryBase       time.Duration
	RetryMax        time.Duration
	Lease           time.Duration
	PollInterval    time.Duration
	DispatchTimeout time.Duration
}

type Pool struct {
	queue      queue.Queue
	dispatcher Dispatcher
	opts       Options
	wg         sync.WaitGroup
}

func NewPool(q queue.Queue, d Dispatcher, opts Options) *Pool {
	return &Pool{
		queue:      q,
		dispatcher: d,
		opts:       opts,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.maintain(ctx)
}

func (p *Pool) Stop() {
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Dequeue(ctx, p.opts.Lease)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.process(ctx, job)
	}
}

func (p *Pool) process(ctx context.Context, job *models.NotificationJob) {
	// The queue is at-least-once: a job that already went out must not be
	// dispatched again on redelivery.
	if job.Status == models.JobStatusSent {
		if err := p.queue.Complete(ctx, job); err != nil {
			slog.Error("completing redelivered job failed", "job", job.ID, "error", err)
		}
		return
	}

	job.Status = models.JobStatusSending

	dispatchCtx, cancel := context.WithTimeout(ctx, p.opts.DispatchTimeout)
	provider, err := p.dispatcher.Dispatch(dispatchCtx, job.Recipient, job.Message)
	cancel()

	if err == nil {
		job.Status = models.JobStatusSent
		job.Provider = provider
		if err := p.queue.Complete(ctx, job); err != nil {
			slog.Error("completing job failed", "job", job.ID, "error", err)
			return
		}
		slog.Info("notification sent", "job", job.ID, "recipient", job.Recipient, "provider", provider)
		return
	}

	job.Attempts++
	job.LastError = err.Error()

	if job.Attempts >= p.opts.MaxAttempts {
		job.Status = models.JobStatusFailed
		if dlErr := p.queue.DeadLetter(ctx, job); dlErr != nil {
			slog.Error("dead-lettering job failed", "job", job.ID, "error", dlErr)
			return
		}
		slog.Error("notification dead-lettered", "job", job.ID, "recipient", job.Recipient,
			"attempts", job.Attempts, "error", err)
		return
	}

	delay := Backoff(p.opts.RetryBase, p.opts.RetryMax, job.Attempts)
	job.Status = models.JobStatusQueued
	if rErr := p.queue.Retry(ctx, job, delay); rErr != nil {
		slog.Error("scheduling retry failed", "job", job.ID, "error", rErr)
		return
	}
	slog.Warn("notification retry scheduled", "job", job.ID, "attempt", job.Attempts,
		"max", p.opts.MaxAttempts, "delay", delay, "error", err)
}

// maintain periodically promotes due retries and reaps expired leases so
// jobs abandoned by a dead worker become visible again.
func (p *Pool) maintain(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.queue.PromoteDelayed(ctx); err != nil {
				slog.Error("promoting delayed jobs failed", "error", err)
			} else if n > 0 {
				slog.Debug("promoted delayed jobs", "count", n)
			}

			if n, err := p.queue.ReapExpired(ctx); err != nil {
				slog.Error("reaping expired leases failed", "error", err)
			} else if n > 0 {
				slog.Warn("requeued jobs with expired leases", "count", n)
			}
		}
	}
}

// Backoff returns base << (attempt-1) capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base << uint(attempt-1)
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}
