// Package pipeline resolves postings into assessments through the cache and the analyzer.
package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spigell/leads/internal/ai"
	"github.com/spigell/leads/internal/cache"
	"github.com/spigell/leads/internal/jobs"
	logfields "github.com/spigell/leads/internal/logger"
	"github.com/spigell/leads/internal/profile"
	"github.com/spigell/leads/internal/utils"
)

// ErrAnalyzerUnavailable means no analyzer call succeeded and transient failures were seen.
var ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

var wait = utils.WaitFor

type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max-attempts"`
	BaseDelay   time.Duration `mapstructure:"base-delay"`
	MaxDelay    time.Duration `mapstructure:"max-delay"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// Delay returns the backoff before the attempt following attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type Options struct {
	Concurrency int
	// RatePerMinute caps analyzer calls. Zero disables the limit.
	RatePerMinute float64
	Retry         RetryPolicy
}

// Input is the candidate side shared by every posting in a batch.
type Input struct {
	Resume      *profile.Resume
	Role        *profile.Role
	Preferences *profile.Preferences
}

type Analysis struct {
	Posting     *jobs.Posting
	Fingerprint string
	Assessment  ai.Assessment
	Cached      bool
}

type Skipped struct {
	Posting     *jobs.Posting  `json:"posting"`
	Fingerprint string         `json:"fingerprint"`
	Reason      string         `json:"reason"`
	Kind        ai.FailureKind `json:"kind"`
	Attempts    int            `json:"attempts"`
}

// Report keeps analyses and skipped postings in input order.
type Report struct {
	Analyses  []Analysis
	Skipped   []Skipped
	Hits      int
	Misses    int
	Calls     int
	Transient int
	Permanent int
	Canceled  int
}

type outcome struct {
	analysis *Analysis
	skipped  *Skipped
	cached   bool
	canceled bool
	calls    int
}

type Orchestrator struct {
	cache       *cache.Cache
	analyzer    ai.Analyzer
	limiter     *rate.Limiter
	retry       RetryPolicy
	concurrency int
	logger      *zap.Logger
}

func NewOrchestrator(c *cache.Cache, analyzer ai.Analyzer, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerMinute/60), 1)
	}

	retry := opts.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Orchestrator{
		cache:       c,
		analyzer:    analyzer,
		limiter:     limiter,
		retry:       retry,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Analyze resolves every posting through the cache, calling the analyzer on misses.
// A failing posting is reported as skipped and never stops the batch.
// On cancellation the finished part of the report is returned with ctx.Err().
func (o *Orchestrator) Analyze(ctx context.Context, in *Input, postings []*jobs.Posting) (*Report, error) {
	outcomes := make([]outcome, len(postings))

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)

	for i, posting := range postings {
		if ctx.Err() != nil {
			for j := i; j < len(postings); j++ {
				outcomes[j] = outcome{canceled: true}
			}
			break
		}
		g.Go(func() error {
			outcomes[i] = o.resolve(ctx, in, posting)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for _, out := range outcomes {
		report.Calls += out.calls
		switch {
		case out.canceled:
			report.Canceled++
			continue
		case out.cached:
			report.Hits++
		default:
			report.Misses++
		}
		// Canceled postings were never decided, so they count neither way.
		o.cache.Record(out.cached)

		if out.analysis != nil {
			report.Analyses = append(report.Analyses, *out.analysis)
			continue
		}

		report.Skipped = append(report.Skipped, *out.skipped)
		if out.skipped.Kind == ai.FailureTransient {
			report.Transient++
		} else {
			report.Permanent++
		}
	}

	o.logger.Info("analysis finished",
		zap.Int("analyzed", len(report.Analyses)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("cache_hits", report.Hits),
		zap.Int("cache_misses", report.Misses),
		zap.Int("analyzer_calls", report.Calls),
		zap.Int("canceled", report.Canceled),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if report.Misses > 0 && report.Misses == len(report.Skipped) && report.Transient > 0 {
		err := errors.Mark(errors.Newf("all %d analyzer requests failed", report.Misses), ErrAnalyzerUnavailable)
		return report, errors.WithHint(err, "check the analyzer API key, quota and network access, then rerun; cached results were kept")
	}

	return report, nil
}

func (o *Orchestrator) resolve(ctx context.Context, in *Input, posting *jobs.Posting) outcome {
	fp := posting.Fingerprint()
	key := cache.Key{Job: fp, Resume: in.Resume.Fingerprint, Role: in.Role.Fingerprint}
	logger := logfields.WithFields(o.logger, logfields.PostingFields(posting.ID, fp)...)

	if result, ok := o.cache.Get(key); ok {
		logger.Debug("cache hit")
		return outcome{
			cached:   true,
			analysis: &Analysis{Posting: posting, Fingerprint: fp, Assessment: result, Cached: true},
		}
	}

	req := &ai.JobRequest{
		Posting:     posting,
		Resume:      in.Resume,
		Role:        in.Role,
		Preferences: in.Preferences,
	}

	result, attempts, err := o.analyzeWithRetry(ctx, logger, req)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{canceled: true, calls: attempts}
		}

		kind := ai.KindOf(err)
		logger.Warn("skipping posting",
			zap.String("title", posting.Title),
			zap.String("kind", string(kind)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return outcome{
			calls: attempts,
			skipped: &Skipped{
				Posting:     posting,
				Fingerprint: fp,
				Reason:      err.Error(),
				Kind:        kind,
				Attempts:    attempts,
			},
		}
	}

	o.cache.Put(key, *result, cache.Origin{Title: posting.Title, Company: posting.Company, URL: posting.URL})
	logger.Debug("posting analyzed", zap.Int("confidence", result.Confidence), zap.Int("attempts", attempts))

	return outcome{
		calls:    attempts,
		analysis: &Analysis{Posting: posting, Fingerprint: fp, Assessment: *result},
	}
}

func (o *Orchestrator) analyzeWithRetry(ctx context.Context, logger *zap.Logger, req *ai.JobRequest) (*ai.Assessment, int, error) {
	for attempt := 1; ; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, attempt - 1, err
		}

		result, err := o.analyzer.AnalyzeJob(ctx, req)
		if err == nil {
			if err := result.Validate(); err != nil {
				return nil, attempt, err
			}
			return result, attempt, nil
		}

		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		if ai.KindOf(err) != ai.FailureTransient || attempt >= o.retry.MaxAttempts {
			return nil, attempt, err
		}

		delay := o.retry.Delay(attempt)
		logger.Info("retrying analysis",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.retry.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}
