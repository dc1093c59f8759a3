package filtering

import (
	"context"
	"fmt"

	"github.com/spigell/leads/internal/jobs"
)

// HiddenSet is the lookup side of the dismissed jobs set.
type HiddenSet interface {
	Contains(fp string) bool
	Len() int
}

type hiddenFilter struct {
	set      HiddenSet
	disabled bool
	reason   string
}

// NewHidden creates a filter that removes postings the user dismissed earlier.
// It must run before anything that spends analyzer calls.
func NewHidden(set HiddenSet) Filter {
	return &hiddenFilter{set: set}
}

func (f *hiddenFilter) Name() string { return "hidden" }

func (f *hiddenFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *hiddenFilter) IsEnabled() bool { return !f.disabled }

func (f *hiddenFilter) Validate() error {
	if f.set == nil {
		return fmt.Errorf("hidden jobs set is not loaded")
	}
	return nil
}

func (f *hiddenFilter) Apply(_ context.Context, p *jobs.Postings) (*jobs.Postings, Step, error) {
	initial := p.Len()
	if f.set.Len() == 0 {
		return p, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	dropped := p.Keep(func(posting *jobs.Posting) bool {
		return !f.set.Contains(posting.Fingerprint())
	})

	return p, Step{Initial: initial, Dropped: len(dropped), Left: p.Len()}, nil
}

func (f *hiddenFilter) Status() Status {
	details := map[string]string{}
	if f.set != nil {
		details["hidden"] = fmt.Sprintf("%d", f.set.Len())
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
