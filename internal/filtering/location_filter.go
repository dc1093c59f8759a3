package filtering

import (
	"context"
	"strings"

	"github.com/spigell/leads/internal/jobs"
)

type locationFilter struct {
	locations []string
	remote    []string
}

// NewLocation keeps postings located in one of locations or advertised as remote.
// With no locations configured every posting passes.
func NewLocation(locations, remoteIndicators []string) Filter {
	return &locationFilter{
		locations: lowerAll(locations),
		remote:    lowerAll(remoteIndicators),
	}
}

func (f *locationFilter) Name() string { return "location" }

func (f *locationFilter) Disable(string) {}

func (f *locationFilter) IsEnabled() bool { return len(f.locations) > 0 }

func (f *locationFilter) Validate() error { return nil }

func (f *locationFilter) Apply(_ context.Context, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()

	dropped := p.Keep(func(posting *jobs.Posting) bool {
		location := strings.ToLower(posting.Location)
		if containsAny(location, f.locations) {
			return true
		}
		text := location + " " + strings.ToLower(posting.Title) + " " + strings.ToLower(posting.Description)
		return containsAny(text, f.remote)
	})

	return p, Step{Initial: initial, Dropped: len(dropped), Left: p.Len()}, nil
}

func (f *locationFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Details: map[string]string{
			"locations": strings.Join(f.locations, ","),
			"remote":    strings.Join(f.remote, ","),
		},
	}
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
