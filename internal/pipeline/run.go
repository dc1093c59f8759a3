package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/leads/internal/filtering"
	"github.com/spigell/leads/internal/jobs"
	"github.com/spigell/leads/internal/match"
)

// Runner chains filtering, analysis, classification and ranking.
type Runner struct {
	Filters      *filtering.Filtering
	Orchestrator *Orchestrator
	Policy       match.Policy
	Logger       *zap.Logger
}

type Outcome struct {
	Ranked []match.Result
	Report *Report
}

// Run filters postings, analyzes what is left and returns the ranked results.
// When analysis ends early the partial outcome is returned together with the error.
func (r *Runner) Run(ctx context.Context, in *Input, postings *jobs.Postings) (*Outcome, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if r.Filters != nil {
		filtered, err := r.Filters.RunFilters(ctx, postings)
		if err != nil {
			return nil, fmt.Errorf("filtering postings: %w", err)
		}
		postings = filtered
	}

	if postings.Len() == 0 {
		logger.Info("no postings left to analyze")
		return &Outcome{Report: &Report{}}, nil
	}

	report, err := r.Orchestrator.Analyze(ctx, in, postings.Items)
	if report == nil {
		return nil, err
	}

	results := make([]match.Result, 0, len(report.Analyses))
	for _, analysis := range report.Analyses {
		results = append(results, match.Result{
			Posting:       analysis.Posting,
			Fingerprint:   analysis.Fingerprint,
			Assessment:    analysis.Assessment,
			Tier:          match.Classify(&analysis.Assessment, in.Preferences, r.Policy),
			TargetCompany: in.Preferences.IsTargetCompany(analysis.Posting.Company),
		})
	}

	return &Outcome{Ranked: match.Rank(results), Report: report}, err
}
