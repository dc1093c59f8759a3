package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/leads/internal/ai"
	"github.com/spigell/leads/internal/jobs"
	"github.com/spigell/leads/internal/profile"
	"github.com/spigell/leads/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
}

// Analyzer scores postings and extracts candidate profiles with Gemini.
type Analyzer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var (
	//go:embed prompts/system.md
	systemPrompt string
	//go:embed prompts/job.md
	jobPromptTemplate string
	//go:embed prompts/resume.md
	resumePromptTemplate string
	//go:embed prompts/role.md
	rolePromptTemplate string
	//go:embed prompts/customize.md
	customizePromptTemplate string
)

const (
	defaultMaxLogLength = 200
	confidenceField     = "confidence_score"
	noneValue           = "none"
)

func NewAnalyzer(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Analyzer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Analyzer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// AnalyzeJob implements ai.Analyzer.
func (a *Analyzer) AnalyzeJob(ctx context.Context, req *ai.JobRequest) (*ai.Assessment, error) {
	if req == nil || req.Posting == nil {
		return nil, ai.Permanent(fmt.Errorf("posting is required"))
	}
	if req.Resume == nil || req.Role == nil {
		return nil, ai.Permanent(fmt.Errorf("resume and role profiles are required"))
	}

	prompt, err := buildJobPrompt(req)
	if err != nil {
		return nil, ai.Permanent(err)
	}

	raw, err := a.generate(ctx, prompt, zap.String("posting_id", req.Posting.ID))
	if err != nil {
		return nil, err
	}

	return parseAssessment(raw)
}

// ExtractResume implements profile.Extractor.
func (a *Analyzer) ExtractResume(ctx context.Context, text string) (*profile.Resume, error) {
	prompt := strings.ReplaceAll(resumePromptTemplate, "{{RESUME_TEXT}}", strings.TrimSpace(text))

	raw, err := a.generate(ctx, prompt, zap.String("kind", "resume"))
	if err != nil {
		return nil, err
	}

	var resume profile.Resume
	if err := decodeInto(raw, &resume); err != nil {
		return nil, err
	}
	return &resume, nil
}

// AnalyzeRole implements profile.Extractor.
func (a *Analyzer) AnalyzeRole(ctx context.Context, keywords []string, prefs *profile.Preferences) (*profile.Role, error) {
	if prefs == nil {
		prefs = &profile.Preferences{}
	}

	prompt := strings.NewReplacer(
		"{{KEYWORDS}}", listOrNone(keywords),
		"{{PREFERRED_INDUSTRIES}}", listOrNone(prefs.PreferredIndustries),
		"{{AVOID_INDUSTRIES}}", listOrNone(prefs.IndustriesToAvoid),
	).Replace(rolePromptTemplate)

	raw, err := a.generate(ctx, prompt, zap.String("kind", "role"))
	if err != nil {
		return nil, err
	}

	var role profile.Role
	if err := decodeInto(raw, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// CustomizeResume rewrites resumeText for posting, guided by its assessment.
func (a *Analyzer) CustomizeResume(ctx context.Context, resumeText string, posting *jobs.Posting, assessment *ai.Assessment) (string, error) {
	if posting == nil || assessment == nil {
		return "", ai.Permanent(fmt.Errorf("posting and assessment are required"))
	}
	if strings.TrimSpace(resumeText) == "" {
		return "", ai.Permanent(fmt.Errorf("resume text is empty"))
	}

	postingJSON, err := json.MarshalIndent(posting, "", "  ")
	if err != nil {
		return "", ai.Permanent(fmt.Errorf("marshal posting payload: %w", err))
	}

	prompt := strings.NewReplacer(
		"{{MATCH_LEVEL}}", orNone(assessment.MatchLevel),
		"{{CONFIDENCE}}", strconv.Itoa(assessment.Confidence),
		"{{INDUSTRY_FIT}}", orNone(assessment.IndustryFit),
		"{{KEY_REASONS}}", listOrNone(assessment.KeyReasons),
		"{{KEYWORDS}}", listOrNone(assessment.CandidateKeywords),
		"{{OVERALL_ASSESSMENT}}", orNone(assessment.OverallAssessment),
		"{{POSTING_JSON}}", string(postingJSON),
		"{{RESUME_TEXT}}", strings.TrimSpace(resumeText),
	).Replace(customizePromptTemplate)

	raw, err := a.generate(ctx, prompt, zap.String("kind", "customize"), zap.String("posting_id", posting.ID))
	if err != nil {
		return "", err
	}

	var out struct {
		Resume string `json:"resume"`
	}
	if err := decodeInto(raw, &out); err != nil {
		return "", err
	}

	customized := strings.TrimSpace(out.Resume)
	if customized == "" {
		return "", ai.Permanent(fmt.Errorf("gemini returned an empty resume"))
	}
	return customized, nil
}

func (a *Analyzer) generate(ctx context.Context, prompt string, fields ...zap.Field) (string, error) {
	a.logger.Debug("gemini generate content request", append(fields,
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)...)

	raw, err := a.generator.GenerateContent(ctx, systemPrompt, prompt)
	if err != nil {
		return "", classifyError(err)
	}

	a.logger.Debug("gemini generate content response", append(fields,
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)...)

	return raw, nil
}

func buildJobPrompt(req *ai.JobRequest) (string, error) {
	resumeJSON, err := json.MarshalIndent(req.Resume, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal resume payload: %w", err)
	}

	roleJSON, err := json.MarshalIndent(req.Role, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal role payload: %w", err)
	}

	postingJSON, err := json.MarshalIndent(req.Posting, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal posting payload: %w", err)
	}

	prefs := req.Preferences
	if prefs == nil {
		prefs = &profile.Preferences{}
	}

	return strings.NewReplacer(
		"{{RESUME_JSON}}", string(resumeJSON),
		"{{ROLE_JSON}}", string(roleJSON),
		"{{POSTING_JSON}}", string(postingJSON),
		"{{PREFERRED_INDUSTRIES}}", listOrNone(prefs.PreferredIndustries),
		"{{AVOID_INDUSTRIES}}", listOrNone(prefs.IndustriesToAvoid),
	).Replace(jobPromptTemplate), nil
}

// parseAssessment coerces the loosely typed model output into ai.Assessment.
// Anything that cannot be coerced is a permanent failure.
func parseAssessment(raw string) (*ai.Assessment, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	rawConfidence, ok := data[confidenceField]
	if !ok || rawConfidence == nil {
		return nil, ai.Permanent(fmt.Errorf("gemini response has no %s", confidenceField))
	}

	var assessment ai.Assessment
	if err := decode(data, &assessment, "mapstructure"); err != nil {
		return nil, err
	}

	assessment.Confidence = clampConfidence(rawConfidence, assessment.Confidence)
	assessment.IndustryFit = strings.ToLower(strings.TrimSpace(assessment.IndustryFit))

	if err := assessment.Validate(); err != nil {
		return nil, err
	}

	return &assessment, nil
}

// clampConfidence rounds fractional scores and keeps them within the allowed range.
func clampConfidence(raw any, decoded int) int {
	value := float64(decoded)
	if f, ok := raw.(float64); ok {
		value = math.Round(f)
	}
	switch {
	case value < ai.MinConfidence:
		return ai.MinConfidence
	case value > ai.MaxConfidence:
		return ai.MaxConfidence
	default:
		return int(value)
	}
}

func decodeInto(raw string, target any) error {
	data, err := decodeObject(raw)
	if err != nil {
		return err
	}
	return decode(data, target, "json")
}

func decodeObject(raw string) (map[string]any, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, ai.Permanent(fmt.Errorf("parse gemini response: %w", err))
	}
	return data, nil
}

func decode(data map[string]any, target any, tag string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          tag,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return ai.Permanent(fmt.Errorf("unexpected gemini response shape: %w", err))
	}
	return nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Models occasionally wrap the object in prose.
	if !strings.HasPrefix(raw, "{") {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start != -1 && end > start {
			raw = raw[start : end+1]
		}
	}
	return raw
}

func orNone(value string) string {
	if value = strings.TrimSpace(value); value == "" {
		return noneValue
	}
	return value
}

func listOrNone(values []string) string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return noneValue
	}
	return strings.Join(cleaned, ", ")
}
