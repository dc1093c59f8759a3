// Package jobs holds the normalized job posting model shared by every job source.
package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spigell/leads/internal/fingerprint"
)

const (
	PostingIDField      = "ID"
	PostingCompanyField = "Company"
)

// Posting is a job posting as delivered by a source. It is never mutated after loading.
type Posting struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	// Summary is the listing text of sources that may or may not deliver full details.
	// When set it stands in for Description in the fingerprint.
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PostedAt    time.Time `json:"posted_at"`
}

// Fingerprint identifies the posting content. Posted time and location are left out
// so a reposted vacancy keeps its identity.
func (p *Posting) Fingerprint() string {
	content := p.Description
	if p.Summary != "" {
		content = p.Summary
	}
	return fingerprint.Fields(
		strings.ToLower(p.Title),
		strings.ToLower(p.Company),
		p.ID,
		content,
	)
}

func (p *Posting) GetStringField(name string) string {
	switch name {
	case PostingIDField:
		return p.ID
	case PostingCompanyField:
		return p.Company
	default:
		return ""
	}
}

type Postings struct {
	Items []*Posting
}

func (p *Postings) Len() int {
	return len(p.Items)
}

func (p *Postings) FindByID(id string) *Posting {
	for _, posting := range p.Items {
		if posting.ID == id {
			return posting
		}
	}
	return nil
}

// Keep retains postings for which keep returns true and returns the ids of dropped ones.
// Relative order of the kept postings is preserved.
func (p *Postings) Keep(keep func(*Posting) bool) []string {
	var dropped []string
	kept := p.Items[:0]
	for _, posting := range p.Items {
		if keep(posting) {
			kept = append(kept, posting)
			continue
		}
		dropped = append(dropped, posting.ID)
	}
	for i := len(kept); i < len(p.Items); i++ {
		p.Items[i] = nil
	}
	p.Items = kept
	return dropped
}

// Exclude drops postings whose named field equals one of targets, case-insensitively.
func (p *Postings) Exclude(name string, targets []string) []string {
	set := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		set[strings.ToLower(strings.TrimSpace(target))] = struct{}{}
	}
	return p.Keep(func(posting *Posting) bool {
		_, found := set[strings.ToLower(strings.TrimSpace(posting.GetStringField(name)))]
		return !found
	})
}

// Dedupe removes postings sharing a source id, keeping the first occurrence.
func (p *Postings) Dedupe() []string {
	seen := make(map[string]struct{}, len(p.Items))
	return p.Keep(func(posting *Posting) bool {
		key := posting.ID
		if key == "" {
			key = posting.URL
		}
		if key == "" {
			return true
		}
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
}

// LoadFile reads postings from a JSON array file.
func LoadFile(path string) (*Postings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading postings file: %w", err)
	}

	var items []*Posting
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing postings file %s: %w", path, err)
	}

	for idx, item := range items {
		if item == nil {
			return nil, fmt.Errorf("parsing postings file %s: entry %d is null", path, idx)
		}
		if item.ID == "" {
			item.ID = item.URL
		}
		if item.Source == "" {
			item.Source = "file"
		}
	}

	return &Postings{Items: items}, nil
}
