package validation

import (
	"context"
	"time"

	"go.uber.org/zap"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/pkg/metrics"
)

// DefaultDelay is the minimum pause between two validator calls. The external
// service allows at most one request per second per client; the batch runner
// is sequential on purpose and must stay that way.
const DefaultDelay = time.Second

// Progress describes the state of a running batch after one URL finished.
type Progress struct {
	Processed  int
	Total      int
	CurrentURL string
	Result     *Result
	Err        error
}

// ProgressFunc is invoked synchronously after every URL, in processing order.
type ProgressFunc func(p Progress)

// Validator is satisfied by Client and by test doubles.
type Validator interface {
	ValidateOne(ctx context.Context, pageURL string) (*Result, error)
}

// Batch drives a Validator across a URL list strictly sequentially.
type Batch struct {
	validator Validator
	delay     time.Duration
}

type BatchOption func(*Batch)

// WithDelay overrides the inter-request delay. Production keeps the default;
// tests shrink it.
func WithDelay(delay time.Duration) BatchOption {
	return func(b *Batch) {
		b.delay = delay
	}
}

func NewBatch(validator Validator, opts ...BatchOption) *Batch {
	b := &Batch{
		validator: validator,
		delay:     DefaultDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run validates every URL in order and always returns exactly one result per
// input URL. A failing call does not abort the batch: the URL gets a
// synthetic invalid result carrying a single critical error and processing
// moves on.
func (b *Batch) Run(ctx context.Context, urls []string, onProgress ProgressFunc) []Result {
	results := make([]Result, 0, len(urls))

	for i, pageURL := range urls {
		if i > 0 {
			// rate limit: the pause is an external policy requirement, not a
			// tunable performance knob
			select {
			case <-time.After(b.delay):
			case <-ctx.Done():
			}
		}

		start := time.Now()
		result, err := b.validator.ValidateOne(ctx, pageURL)
		metrics.ObserveUrlValidationDuration(time.Since(start).Seconds())

		if err != nil {
			zap.S().Named("validation").Warnf("validation failed for %s: %v", pageURL, err)
			result = syntheticFailure(pageURL, err)
		}

		results = append(results, *result)

		if onProgress != nil {
			onProgress(Progress{
				Processed:  i + 1,
				Total:      len(urls),
				CurrentURL: pageURL,
				Result:     result,
				Err:        err,
			})
		}
	}

	return results
}

// syntheticFailure turns a transport-level failure into a result row so the
// batch stays complete. The single error entry is critical severity and
// explains that the validator could not be reached, not that the page is
// invalid markup.
func syntheticFailure(pageURL string, err error) *Result {
	return &Result{
		URL: pageURL,
		Errors: []api.ValidationMessage{
			{
				Message:  "validation could not be performed: " + err.Error(),
				Severity: api.SeverityCritical,
			},
		},
		Warnings:  []api.ValidationMessage{},
		IsValid:   false,
		CheckedAt: time.Now().UTC(),
	}
}
