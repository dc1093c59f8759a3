package headhunter

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/spigell/leads/internal/jobs"
)

const (
	publishedAtLayout = "2006-01-02T15:04:05-0700"
	remoteScheduleID  = "remote"
)

type Vacancies struct {
	Items []*Vacancy
}

type Vacancy struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Area struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	Salary struct {
		From     int    `json:"from,omitempty"`
		To       int    `json:"to,omitempty"`
		Currency string `json:"currency,omitempty"`
	} `json:"salary,omitempty"`
	Experience struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"experience,omitempty"`
	Schedule struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"schedule,omitempty"`
	Employer struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"employer,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Description  string `json:"description,omitempty"`
	KeySkills    []struct {
		Name string `json:"name,omitempty"`
	} `json:"key_skills,omitempty"`
	Archived bool `json:"archived,omitempty"`
	Snipet   struct {
		Requirement    string `json:"requirement,omitempty"`
		Responsibility string `json:"responsibility,omitempty"`
	} `json:"snippet,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Posting converts the vacancy. Remote schedules are appended to the location so the
// location filter can match them against remote indicators.
func (va *Vacancy) Posting() *jobs.Posting {
	location := va.Area.Name
	if va.Schedule.ID == remoteScheduleID {
		location = strings.TrimSpace(location + " (remote)")
	}

	posted, err := time.Parse(publishedAtLayout, va.PublishedAt)
	if err != nil {
		posted = time.Time{}
	}

	return &jobs.Posting{
		ID:          va.ID,
		Title:       va.Name,
		Company:     va.Employer.Name,
		Location:    location,
		Description: va.description(),
		Summary:     va.summary(),
		URL:         va.AlternateURL,
		Source:      Source,
		PostedAt:    posted.UTC(),
	}
}

func (va *Vacancy) description() string {
	var parts []string
	if va.Description != "" {
		parts = append(parts, htmlText(va.Description))
	} else if snippet := va.snippetText(); snippet != "" {
		parts = append(parts, snippet)
	}

	if len(va.KeySkills) > 0 {
		skills := make([]string, 0, len(va.KeySkills))
		for _, s := range va.KeySkills {
			skills = append(skills, s.Name)
		}
		parts = append(parts, fmt.Sprintf("Key skills: %s", strings.Join(skills, ", ")))
	}

	return strings.Join(parts, "\n")
}

// summary is the same whether or not the details were fetched, so a vacancy keeps its
// fingerprint when the details request fails.
func (va *Vacancy) summary() string {
	if snippet := va.snippetText(); snippet != "" {
		return snippet
	}
	return va.Name
}

func (va *Vacancy) snippetText() string {
	var parts []string
	for _, s := range []string{va.Snipet.Requirement, va.Snipet.Responsibility} {
		if s != "" {
			parts = append(parts, htmlText(s))
		}
	}
	return strings.Join(parts, "\n")
}

// htmlText flattens vacancy markup to plain text, one line per block element.
func htmlText(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	doc.Find("script, style").Remove()
	doc.Find("p, li, br, div, h1, h2, h3, h4, ul, ol").AfterHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

// Postings converts every vacancy. Archived vacancies are skipped.
func (v *Vacancies) Postings() *jobs.Postings {
	postings := &jobs.Postings{Items: make([]*jobs.Posting, 0, len(v.Items))}
	for _, vacancy := range v.Items {
		if vacancy.Archived {
			continue
		}
		postings.Items = append(postings.Items, vacancy.Posting())
	}
	return postings
}

func (v *Vacancies) Len() int {
	return len(v.Items)
}

func (v *Vacancies) FindByID(id string) *Vacancy {
	for _, vacancy := range v.Items {
		if vacancy.ID == id {
			return vacancy
		}
	}
	return nil
}
