package validation

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadcheck/internal/model"
)

// Summary aggregates a batch run.
type Summary struct {
	Processed int
	Valid     int
	NoWebsite int
	Review    int
	Skipped   int
	Errors    int
}

// Runner drives the orchestrator over stored businesses in throttled batches.
type Runner struct {
	orch      *Orchestrator
	batchSize int
	limiter   *rate.Limiter
}

// DefaultBatchSize keeps a batch small enough that a crash loses little work.
const DefaultBatchSize = 25

// NewRunner creates a Runner. perMinute caps how many batches start per
// minute; zero disables throttling.
func NewRunner(orch *Orchestrator, batchSize int, perMinute int) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var limiter *rate.Limiter
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	}
	return &Runner{orch: orch, batchSize: batchSize, limiter: limiter}
}

// RunValidation processes businesses that hold an unverified candidate URL.
func (r *Runner) RunValidation(ctx context.Context, limit int) (*Summary, error) {
	return r.run(ctx, limit, r.orch.store.ListForValidation)
}

// RunDiscovery processes businesses with no URL at all.
func (r *Runner) RunDiscovery(ctx context.Context, limit int) (*Summary, error) {
	return r.run(ctx, limit, r.orch.store.ListForDiscovery)
}

type lister func(ctx context.Context, limit int) ([]model.Business, error)

func (r *Runner) run(ctx context.Context, limit int, list lister) (*Summary, error) {
	summary := &Summary{}
	remaining := limit

	for remaining != 0 {
		batch := r.batchSize
		if remaining > 0 && remaining < batch {
			batch = remaining
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return summary, eris.Wrap(err, "validation: wait for batch slot")
			}
		}

		businesses, err := list(ctx, batch)
		if err != nil {
			return summary, eris.Wrap(err, "validation: list batch")
		}
		if len(businesses) == 0 {
			break
		}

		progressed := 0
		for i := range businesses {
			b := &businesses[i]
			outcome, err := r.orch.Process(ctx, b)
			if err != nil {
				// One bad record must not sink the batch.
				zap.L().Warn("process business failed",
					zap.String("business_id", b.ID),
					zap.Error(err),
				)
				summary.Errors++
				summary.Processed++
				continue
			}
			summary.Processed++
			switch outcome.Disposition {
			case DispositionValid:
				summary.Valid++
				progressed++
			case DispositionNoWebsite:
				summary.NoWebsite++
				progressed++
			case DispositionReview:
				summary.Review++
				progressed++
			case DispositionSkipped:
				summary.Skipped++
			}
		}

		if remaining > 0 {
			remaining -= len(businesses)
		}
		// A batch of pure skips means the rest of the queue is gated; listing
		// again would return the same rows.
		if len(businesses) < batch || progressed == 0 {
			break
		}
	}

	zap.L().Info("validation run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("valid", summary.Valid),
		zap.Int("no_website", summary.NoWebsite),
		zap.Int("review", summary.Review),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}
