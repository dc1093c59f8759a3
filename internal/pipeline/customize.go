package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/leads/internal/ai"
	"github.com/spigell/leads/internal/jobs"
	logfields "github.com/spigell/leads/internal/logger"
	"github.com/spigell/leads/internal/match"
)

// ResumeCustomizer rewrites a resume for one posting.
type ResumeCustomizer interface {
	CustomizeResume(ctx context.Context, resumeText string, posting *jobs.Posting, assessment *ai.Assessment) (string, error)
}

// Customize returns one customized resume per result, in order. Transient failures are
// retried per retry; a result that still fails gets an empty resume and a warning.
// Only cancellation stops the loop.
func Customize(ctx context.Context, customizer ResumeCustomizer, resumeText string, results []match.Result, retry RetryPolicy, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	resumes := make([]string, len(results))
	for i := range results {
		r := &results[i]
		l := logfields.WithFields(logger, logfields.PostingFields(r.Posting.ID, r.Fingerprint)...)

		for attempt := 1; ; attempt++ {
			resume, err := customizer.CustomizeResume(ctx, resumeText, r.Posting, &r.Assessment)
			if err == nil {
				resumes[i] = resume
				l.Info("resume customized", zap.String("title", r.Posting.Title), zap.Int("attempts", attempt))
				break
			}

			if ctx.Err() != nil {
				return resumes, ctx.Err()
			}

			if ai.KindOf(err) != ai.FailureTransient || attempt >= retry.MaxAttempts {
				l.Warn("resume customization failed",
					zap.String("title", r.Posting.Title),
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
				break
			}

			if err := wait(ctx, retry.Delay(attempt)); err != nil {
				return resumes, err
			}
		}
	}

	return resumes, nil
}
