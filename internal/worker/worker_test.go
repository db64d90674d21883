package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bharatranastudy/outbreak-alerts/internal/models"
	"github.com/bharatranastudy/outbreak-alerts/internal/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type retryRecord struct {
	job   models.NotificationJob
	delay time.Duration
}

// memQueue is an in-memory stand-in for the redis queue. Retried jobs are
// captured rather than requeued so tests observe a single pass.
type memQueue struct {
	mu        sync.Mutex
	pending   []*models.NotificationJob
	completed []models.NotificationJob
	dead      []models.NotificationJob
	retries   []retryRecord
}

func (q *memQueue) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, lease time.Duration) (*models.NotificationJob, error) {
	q.mu.Lock()
	if len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, queue.ErrEmpty
	}
}

func (q *memQueue) Complete(ctx context.Context, job *models.NotificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, *job)
	return nil
}

func (q *memQueue) Retry(ctx context.Context, job *models.NotificationJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries = append(q.retries, retryRecord{job: *job, delay: delay})
	return nil
}

func (q *memQueue) DeadLetter(ctx context.Context, job *models.NotificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, *job)
	return nil
}

func (q *memQueue) PromoteDelayed(ctx context.Context) (int, error) { return 0, nil }
func (q *memQueue) ReapExpired(ctx context.Context) (int, error)    { return 0, nil }

func (q *memQueue) snapshot() (completed, dead []models.NotificationJob, retries []retryRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.NotificationJob(nil), q.completed...),
		append([]models.NotificationJob(nil), q.dead...),
		append([]retryRecord(nil), q.retries...)
}

type fakeDispatcher struct {
	mu       sync.Mutex
	provider string
	err      error
	calls    int
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, recipient, message string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.provider, d.err
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testOptions() Options {
	return Options{
		Workers:         2,
		MaxAttempts:     3,
		RetryBase:       time.Minute,
		RetryMax:        time.Hour,
		Lease:           time.Minute,
		PollInterval:    50 * time.Millisecond,
		DispatchTimeout: time.Second,
	}
}

func runPool(t *testing.T, q queue.Queue, d Dispatcher, wait time.Duration) {
	t.Helper()

	pool := NewPool(q, d, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	time.Sleep(wait)

	cancel()
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}
}

func TestPool_SuccessfulDispatch(t *testing.T) {
	q := &memQueue{}
	q.Enqueue(context.Background(), &models.NotificationJob{
		ID:        "job-1",
		Recipient: "user-1",
		Message:   "outbreak alert",
		Status:    models.JobStatusQueued,
	})
	d := &fakeDispatcher{provider: "twilio"}

	runPool(t, q, d, 100*time.Millisecond)

	completed, dead, retries := q.snapshot()
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed job, got %d", len(completed))
	}
	if completed[0].Status != models.JobStatusSent {
		t.Errorf("expected status sent, got %s", completed[0].Status)
	}
	if completed[0].Provider != "twilio" {
		t.Errorf("expected provider twilio, got %s", completed[0].Provider)
	}
	if len(dead) != 0 || len(retries) != 0 {
		t.Errorf("unexpected dead=%d retries=%d", len(dead), len(retries))
	}
}

func TestPool_FailureSchedulesBackoffRetry(t *testing.T) {
	q := &memQueue{}
	q.Enqueue(context.Background(), &models.NotificationJob{
		ID:     "job-1",
		Status: models.JobStatusQueued,
	})
	d := &fakeDispatcher{err: errors.New("all providers down")}

	runPool(t, q, d, 100*time.Millisecond)

	_, dead, retries := q.snapshot()
	if len(retries) != 1 {
		t.Fatalf("expected 1 retry, got %d", len(retries))
	}
	r := retries[0]
	if r.job.Attempts != 1 {
		t.Errorf("expected attempt count 1, got %d", r.job.Attempts)
	}
	if r.job.Status != models.JobStatusQueued {
		t.Errorf("expected status queued for retry, got %s", r.job.Status)
	}
	if r.job.LastError == "" {
		t.Error("expected last error recorded")
	}
	if r.delay != time.Minute {
		t.Errorf("expected base delay for first retry, got %v", r.delay)
	}
	if len(dead) != 0 {
		t.Errorf("job must not be dead-lettered before exhausting attempts, got %d", len(dead))
	}
}

func TestPool_ExhaustedJobIsDeadLettered(t *testing.T) {
	q := &memQueue{}
	q.Enqueue(context.Background(), &models.NotificationJob{
		ID:       "job-1",
		Status:   models.JobStatusQueued,
		Attempts: 2, // one failure away from MaxAttempts=3
	})
	d := &fakeDispatcher{err: errors.New("still down")}

	runPool(t, q, d, 100*time.Millisecond)

	_, dead, retries := q.snapshot()
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead-lettered job, got %d", len(dead))
	}
	if dead[0].Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", dead[0].Status)
	}
	if dead[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", dead[0].Attempts)
	}
	if len(retries) != 0 {
		t.Errorf("exhausted job must not be retried, got %d retries", len(retries))
	}
}

func TestPool_RedeliveredSentJobIsNotDispatched(t *testing.T) {
	q := &memQueue{}
	q.Enqueue(context.Background(), &models.NotificationJob{
		ID:       "job-1",
		Status:   models.JobStatusSent,
		Provider: "twilio",
	})
	d := &fakeDispatcher{provider: "twilio"}

	runPool(t, q, d, 100*time.Millisecond)

	if d.callCount() != 0 {
		t.Errorf("sent job must not be re-dispatched, dispatcher called %d times", d.callCount())
	}
	completed, _, _ := q.snapshot()
	if len(completed) != 1 {
		t.Errorf("redelivered sent job should be completed, got %d", len(completed))
	}
}

func TestBackoff(t *testing.T) {
	base := 5 * time.Minute
	max := 24 * time.Hour

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Minute},
		{2, 10 * time.Minute},
		{3, 20 * time.Minute},
		{5, 80 * time.Minute},
		{10, 24 * time.Hour},  // capped
		{100, 24 * time.Hour}, // shift overflow also capped
		{0, 5 * time.Minute},  // clamped to first attempt
	}
	for _, tc := range cases {
		if got := Backoff(base, max, tc.attempt); got != tc.want {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
