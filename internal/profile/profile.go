// Package profile describes the candidate side of a match: the resume, the target role and preferences.
package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spigell/leads/internal/fingerprint"
)

// Resume is the structured view of a resume file.
type Resume struct {
	Skills            []string `json:"skills"`
	ExperienceSummary string   `json:"experience_summary"`
	ExperienceLevel   string   `json:"experience_level"`
	YearsOfExperience int      `json:"years_of_experience"`
	Industries        []string `json:"industries"`
	Fingerprint       string   `json:"fingerprint"`
}

// Role is the target role derived from search keywords.
type Role struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	RequiredSkills  []string `json:"required_skills"`
	PreferredSkills []string `json:"preferred_skills"`
	Technologies    []string `json:"technologies"`
	ExperienceLevel string   `json:"experience_level"`
	Keywords        []string `json:"keywords"`
	Fingerprint     string   `json:"fingerprint"`
}

type Preferences struct {
	Locations           []string `mapstructure:"locations" json:"locations,omitempty"`
	RemoteIndicators    []string `mapstructure:"remote-indicators" json:"remote_indicators,omitempty"`
	TargetCompanies     []string `mapstructure:"target-companies" json:"target_companies,omitempty"`
	PreferredIndustries []string `mapstructure:"preferred-industries" json:"preferred_industries,omitempty"`
	IndustriesToAvoid   []string `mapstructure:"industries-to-avoid" json:"industries_to_avoid,omitempty"`
	ExcludedCompanies   []string `mapstructure:"excluded-companies" json:"excluded_companies,omitempty"`
}

// Extractor turns raw candidate input into structured profiles.
type Extractor interface {
	ExtractResume(ctx context.Context, text string) (*Resume, error)
	AnalyzeRole(ctx context.Context, keywords []string, prefs *Preferences) (*Role, error)
}

var resumeExtensions = []string{".txt", ".md"}

// LoadResumeText reads a plain text resume and fingerprints its raw content.
func LoadResumeText(path string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(resumeExtensions, ext) {
		return "", "", fmt.Errorf("unsupported resume format %q: convert the resume to one of %s", ext, strings.Join(resumeExtensions, ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading resume: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", "", fmt.Errorf("resume file %s is empty", path)
	}

	return text, fingerprint.Bytes(data), nil
}

// RoleFingerprint identifies a role analysis by its keywords and industry preferences.
// Keyword order and case do not matter.
func RoleFingerprint(keywords []string, prefs *Preferences) string {
	parts := normalizedSet(keywords)
	if prefs != nil {
		parts = append(parts, "preferred:"+strings.Join(normalizedSet(prefs.PreferredIndustries), ","))
		parts = append(parts, "avoid:"+strings.Join(normalizedSet(prefs.IndustriesToAvoid), ","))
	}
	return fingerprint.Fields(parts...)
}

// AvoidsIndustry reports whether the industry matches one of the industries to avoid.
func (p *Preferences) AvoidsIndustry(industry string) bool {
	if p == nil {
		return false
	}
	return containsFold(p.IndustriesToAvoid, industry)
}

func (p *Preferences) IsTargetCompany(company string) bool {
	if p == nil {
		return false
	}
	return containsFold(p.TargetCompanies, company)
}

// containsFold matches when either side contains the other, ignoring case.
func containsFold(list []string, value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return false
	}
	for _, item := range list {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if strings.Contains(value, item) || strings.Contains(item, value) {
			return true
		}
	}
	return false
}

func normalizedSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(fingerprint.Normalize(v))
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
