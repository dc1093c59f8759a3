// Package report exports ranked match results.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spigell/leads/internal/match"
	"github.com/spigell/leads/internal/utils"
)

// Dump writes results to a new temporary JSON file and returns its name.
func Dump(results []match.Result) (string, error) {
	file, err := os.CreateTemp("", "leads_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := encode(file, results); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// Write replaces path with the results. The previous file survives a failed write.
func Write(ctx context.Context, path string, results []match.Result) error {
	return utils.WriteFileAtomic(ctx, path, 0o644, func(w io.Writer) error {
		return encode(w, results)
	})
}

func encode(w io.Writer, results []match.Result) error {
	if results == nil {
		results = []match.Result{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// ByTier groups results by tier, keeping the order they were passed in.
func ByTier(results []match.Result) map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, r := range results {
		key := fmt.Sprintf("%s match", r.Tier)
		entry := map[string]string{
			"confidence":   strconv.Itoa(r.Assessment.Confidence),
			"industry":     r.Assessment.Industry,
			"industry fit": r.Assessment.IndustryFit,
			"assessment":   r.Assessment.OverallAssessment,
			"key reasons":  strings.Join(r.Assessment.KeyReasons, "; "),
		}
		if r.Posting != nil {
			entry["title"] = r.Posting.Title
			entry["company"] = r.Posting.Company
			entry["location"] = r.Posting.Location
			entry["url"] = r.Posting.URL
		}
		if r.TargetCompany {
			entry["target company"] = "yes"
		}
		report[key] = append(report[key], entry)
	}
	return report
}
