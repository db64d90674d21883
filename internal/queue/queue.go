// Package queue provides the durable, at-least-once work queue that
// decouples alert fan-out from notification dispatch. A dequeued job is
// held under a lease; if the worker dies before completing it, the lease
// expires and the job becomes eligible for redelivery.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
)

// ErrEmpty reports that no job was available within the blocking window.
var ErrEmpty = errors.New("queue: no jobs available")

type Queue interface {
	// Enqueue durably stores the job and makes it available to workers.
	Enqueue(ctx context.Context, job *models.NotificationJob) error

	// Dequeue blocks briefly for the next job and moves it in-flight
	// under the given lease. Returns ErrEmpty if nothing arrived.
	Dequeue(ctx context.Context, lease time.Duration) (*models.NotificationJob, error)

	// Complete removes a finished job from the queue entirely.
	Complete(ctx context.Context, job *models.NotificationJob) error

	// Retry releases the lease and schedules the job to become available
	// again after delay, persisting its updated attempt count.
	Retry(ctx context.Context, job *models.NotificationJob, delay time.Duration) error

	// DeadLetter moves the job to the dead-letter destination for
	// operator consumption. It is never retried again.
	DeadLetter(ctx context.Context, job *models.NotificationJob) error

	// PromoteDelayed moves jobs whose retry time has arrived back to the
	// pending queue. Returns how many were promoted.
	PromoteDelayed(ctx context.Context) (int, error)

	// ReapExpired returns jobs with expired leases to the pending queue.
	ReapExpired(ctx context.Context) (int, error)
}
