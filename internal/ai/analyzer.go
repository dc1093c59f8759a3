package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/leads/internal/jobs"
	"github.com/spigell/leads/internal/profile"
)

const (
	MinConfidence = 1
	MaxConfidence = 10
)

// Industry fit labels understood by the classifier.
const (
	FitExcellent = "excellent"
	FitGood      = "good"
	FitNeutral   = "neutral"
	FitPoor      = "poor"
	FitAvoid     = "avoid"
)

// Assessment is the validated analyzer output for a single posting.
type Assessment struct {
	MatchLevel        string   `json:"match_level" mapstructure:"match_level"`
	Confidence        int      `json:"confidence_score" mapstructure:"confidence_score"`
	Industry          string   `json:"industry" mapstructure:"industry"`
	IndustryFit       string   `json:"industry_fit" mapstructure:"industry_fit"`
	SkillAlignment    string   `json:"skill_alignment" mapstructure:"skill_alignment"`
	ExperienceFit     string   `json:"experience_fit" mapstructure:"experience_fit"`
	OverallAssessment string   `json:"overall_assessment" mapstructure:"overall_assessment"`
	KeyReasons        []string `json:"key_reasons" mapstructure:"key_reasons"`
	RequiredSkills    []string `json:"required_skills" mapstructure:"required_skills"`
	CandidateKeywords []string `json:"top_candidate_keywords" mapstructure:"top_candidate_keywords"`
}

// JobRequest carries everything the analyzer needs to score one posting.
type JobRequest struct {
	Posting     *jobs.Posting
	Resume      *profile.Resume
	Role        *profile.Role
	Preferences *profile.Preferences
}

type Analyzer interface {
	AnalyzeJob(ctx context.Context, req *JobRequest) (*Assessment, error)
}

// Validate checks the invariants every stored assessment holds.
// Violations are permanent failures.
func (a *Assessment) Validate() error {
	if a == nil {
		return Permanent(fmt.Errorf("empty assessment"))
	}
	if a.Confidence < MinConfidence || a.Confidence > MaxConfidence {
		return Permanent(fmt.Errorf("confidence %d is outside %d..%d", a.Confidence, MinConfidence, MaxConfidence))
	}
	return nil
}

// NormalizedFit maps free-form industry fit wording onto the known labels.
// Unknown wording falls back to neutral.
func (a *Assessment) NormalizedFit() string {
	fit := strings.ToLower(strings.TrimSpace(a.IndustryFit))
	switch {
	case fit == "":
		return FitNeutral
	case strings.Contains(fit, "avoid"):
		return FitAvoid
	case strings.HasPrefix(fit, FitExcellent), strings.HasPrefix(fit, "strong"):
		return FitExcellent
	case strings.HasPrefix(fit, FitGood):
		return FitGood
	case strings.HasPrefix(fit, FitPoor), strings.HasPrefix(fit, "weak"), strings.HasPrefix(fit, "bad"):
		return FitPoor
	default:
		return FitNeutral
	}
}
