package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spigell/leads/internal/match"
	"github.com/spigell/leads/internal/utils"
)

const (
	DefaultSavedJobsDir = "saved_jobs"
	selectAll           = "all"
	savedJobsLayout     = "20060102_150405"
)

var ErrInvalidSelection = errors.New("invalid job selection")

var now = time.Now

// SavedJob is a selected result, optionally with a resume rewritten for it.
type SavedJob struct {
	match.Result
	CustomizedResume string `json:"customized_resume,omitempty"`
}

// ParseSelection turns input like "1,3,7-9" or "all" into zero-based indexes of n results.
// Numbers are one-based as printed. Numbers outside 1..n are skipped, duplicates are dropped
// and the order of first appearance is kept.
func ParseSelection(input string, n int) ([]int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.Mark(errors.New("no jobs selected"), ErrInvalidSelection)
	}

	if strings.EqualFold(input, selectAll) {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	seen := make(map[int]struct{})
	var picked []int
	add := func(num int) {
		if num < 1 || num > n {
			return
		}
		if _, ok := seen[num]; ok {
			return
		}
		seen[num] = struct{}{}
		picked = append(picked, num-1)
	}

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		start, end, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(start))
		if err != nil {
			return nil, errors.Mark(errors.Newf("%q is not a job number", part), ErrInvalidSelection)
		}
		if !isRange {
			add(from)
			continue
		}

		to, err := strconv.Atoi(strings.TrimSpace(end))
		if err != nil || to < from {
			return nil, errors.Mark(errors.Newf("%q is not a job range", part), ErrInvalidSelection)
		}
		for num := from; num <= to && num <= n; num++ {
			add(num)
		}
	}

	return picked, nil
}

// SaveSelected writes jobs to a new timestamped JSON file under dir and returns its path.
func SaveSelected(ctx context.Context, dir string, jobs []SavedJob) (string, error) {
	if dir == "" {
		dir = DefaultSavedJobsDir
	}
	if jobs == nil {
		jobs = []SavedJob{}
	}

	path := filepath.Join(dir, fmt.Sprintf("selected_jobs_%s.json", now().Format(savedJobsLayout)))
	err := utils.WriteFileAtomic(ctx, path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	})
	if err != nil {
		return "", fmt.Errorf("saving selected jobs: %w", err)
	}

	return path, nil
}
