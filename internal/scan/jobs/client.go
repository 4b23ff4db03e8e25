package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/sitescan/sitescan/internal/config"
	"github.com/sitescan/sitescan/internal/sitemap"
	"github.com/sitescan/sitescan/internal/store"
	"github.com/sitescan/sitescan/internal/validation"
)

// Client owns the queue connection. It is constructed explicitly at startup,
// injected where needed, and drained on shutdown; no package-level state.
type Client struct {
	*river.Client[pgx.Tx]
	limiter     *startLimiter
	maxAttempts int
}

func NewClient(ctx context.Context, pool *pgxpool.Pool, st store.Store, cfg *config.Config) (*Client, error) {
	limiter := newStartLimiter(cfg.Scanner.JobsPerMinute)

	maxAttempts := cfg.Scanner.MaxJobRetries
	if maxAttempts <= 0 {
		maxAttempts = MaxJobRetries
	}

	resolver := sitemap.NewResolver(sitemap.WithMaxURLs(cfg.Scanner.MaxUrlsPerScan))
	batch := validation.NewBatch(
		validation.NewClient(validation.WithEndpoint(cfg.Scanner.ValidatorURL)),
		validation.WithDelay(time.Duration(cfg.Scanner.ValidationDelayMs)*time.Millisecond),
	)

	workers := river.NewWorkers()
	river.AddWorker(workers, NewScanWorker(st, resolver, batch, limiter))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			DefaultQueue: {MaxWorkers: cfg.Scanner.WorkerCount},
		},
		Workers: workers,

		FetchCooldown:     50 * time.Millisecond,
		FetchPollInterval: 100 * time.Millisecond,

		// Bounded retention so completed and failed jobs stay inspectable for
		// a while without growing the table forever.
		CancelledJobRetentionPeriod: 24 * time.Hour,
		CompletedJobRetentionPeriod: 24 * time.Hour,
		DiscardedJobRetentionPeriod: 7 * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	return &Client{Client: riverClient, limiter: limiter, maxAttempts: maxAttempts}, nil
}

// InsertScanJob enqueues one scan and returns the queue-assigned job id and
// its initial state.
func (c *Client) InsertScanJob(ctx context.Context, args ScanArgs) (int64, string, error) {
	result, err := c.Insert(ctx, args, c.insertOpts())
	if err != nil {
		return 0, "", err
	}
	return result.Job.ID, string(result.Job.State), nil
}

// insertOpts carries the configured retry budget; ScanArgs.InsertOpts stays
// the fallback for inserts that bypass this client.
func (c *Client) insertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: c.maxAttempts,
	}
}

// startLimiter spaces job starts so that at most n jobs begin per minute,
// independent of how many workers run concurrently.
type startLimiter struct {
	mu        sync.Mutex
	interval  time.Duration
	nextStart time.Time
}

func newStartLimiter(jobsPerMinute int) *startLimiter {
	if jobsPerMinute <= 0 {
		return &startLimiter{}
	}
	return &startLimiter{interval: time.Minute / time.Duration(jobsPerMinute)}
}

// Wait blocks until this job is allowed to start or the context is done.
func (l *startLimiter) Wait(ctx context.Context) error {
	if l.interval == 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	start := l.nextStart
	if start.Before(now) {
		start = now
	}
	l.nextStart = start.Add(l.interval)
	l.mu.Unlock()

	wait := time.Until(start)
	if wait <= 0 {
		return nil
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
