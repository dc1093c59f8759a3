package headhunter

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := New(zap.NewNop(), "token")
	client.APIURL = srv.URL
	client.HTTPClient = srv.Client()
	return client
}

func TestSearchFollowsPages(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		seenPages []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SearchPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.URL.Query().Get("text"); got != "golang" {
			t.Errorf("unexpected text param %q", got)
		}

		page := r.URL.Query().Get("page")
		mu.Lock()
		seenPages = append(seenPages, page)
		mu.Unlock()

		id := "1"
		current := 0
		if page == "1" {
			id = "2"
			current = 1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":    []map[string]any{{"id": id, "name": "Go Developer " + id}},
			"found":    2,
			"pages":    2,
			"page":     current,
			"per_page": 1,
		})
	})

	vacancies, err := client.Search(context.Background(), &SearchParams{Text: "golang"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if vacancies.Len() != 2 {
		t.Fatalf("expected 2 vacancies, got %d", vacancies.Len())
	}
	if vacancies.FindByID("2") == nil {
		t.Fatalf("expected vacancy from second page")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seenPages) != 2 || seenPages[1] != "1" {
		t.Fatalf("unexpected pages requested: %v", seenPages)
	}
}

func TestSearchBadStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	if _, err := client.Search(context.Background(), &SearchParams{Text: "go"}); err == nil {
		t.Fatalf("expected error on bad status")
	}
}

func TestGetVacancyGzip(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SearchPath+"/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode(map[string]any{
			"id":          "42",
			"name":        "Platform Engineer",
			"description": "<p>Build <strong>Go</strong> services</p>",
		})
	})

	vacancy, err := client.GetVacancy(context.Background(), "42")
	if err != nil {
		t.Fatalf("get vacancy: %v", err)
	}
	if vacancy.Name != "Platform Engineer" {
		t.Fatalf("unexpected vacancy name %q", vacancy.Name)
	}
}

func TestPostingsFallsBackToSnippetWhenDetailsFail(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SearchPath:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "1", "name": "Go Developer", "snippet": map[string]any{"requirement": "Go experience"}},
					{"id": "2", "name": "Archived", "archived": true},
				},
				"pages": 1,
			})
		case SearchPath + "/1":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	postings, err := client.Postings(context.Background(), &SearchParams{Text: "go"}, true)
	if err != nil {
		t.Fatalf("postings: %v", err)
	}

	if postings.Len() != 1 {
		t.Fatalf("expected archived vacancy to be skipped, got %d postings", postings.Len())
	}
	if postings.Items[0].Description != "Go experience" {
		t.Fatalf("expected snippet description, got %q", postings.Items[0].Description)
	}
}

func TestPostingFingerprintDoesNotDependOnDetails(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	failing := false

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SearchPath:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{
					"id":       "1",
					"name":     "Go Developer",
					"employer": map[string]any{"name": "Acme"},
					"snippet":  map[string]any{"requirement": "Go <highlighttext>experience</highlighttext>"},
				}},
				"pages": 1,
			})
		case SearchPath + "/1":
			mu.Lock()
			fail := failing
			mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":          "1",
				"name":        "Go Developer",
				"employer":    map[string]any{"name": "Acme"},
				"description": "<p>Full vacancy text</p>",
				"key_skills":  []map[string]any{{"name": "Go"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	fingerprint := func(details, fail bool) (string, string) {
		mu.Lock()
		failing = fail
		mu.Unlock()

		postings, err := client.Postings(context.Background(), &SearchParams{Text: "go"}, details)
		if err != nil {
			t.Fatalf("postings: %v", err)
		}
		if postings.Len() != 1 {
			t.Fatalf("expected one posting, got %d", postings.Len())
		}
		return postings.Items[0].Fingerprint(), postings.Items[0].Description
	}

	listed, listedText := fingerprint(false, false)
	detailed, detailedText := fingerprint(true, false)
	fallback, _ := fingerprint(true, true)

	if listedText == detailedText {
		t.Fatalf("expected details to change the description, got %q", detailedText)
	}
	if detailed != listed {
		t.Fatalf("details changed the fingerprint: %s != %s", detailed, listed)
	}
	if fallback != listed {
		t.Fatalf("failed details changed the fingerprint: %s != %s", fallback, listed)
	}
}

func TestVacancyPosting(t *testing.T) {
	t.Parallel()

	var va Vacancy
	raw := `{
		"id": "7",
		"name": "Backend Engineer",
		"area": {"name": "Berlin"},
		"schedule": {"id": "remote"},
		"employer": {"name": "Acme"},
		"alternate_url": "https://hh.ru/vacancy/7",
		"description": "<p>Design APIs</p><ul><li>Go</li><li>Postgres</li></ul>",
		"key_skills": [{"name": "Go"}, {"name": "Kafka"}],
		"published_at": "2025-03-01T10:00:00+0300"
	}`
	if err := json.Unmarshal([]byte(raw), &va); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p := va.Posting()

	if p.Location != "Berlin (remote)" {
		t.Fatalf("unexpected location %q", p.Location)
	}
	if p.Company != "Acme" || p.Source != Source || p.URL != "https://hh.ru/vacancy/7" {
		t.Fatalf("unexpected posting %+v", p)
	}
	want := time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)
	if !p.PostedAt.Equal(want) {
		t.Fatalf("expected posted at %s, got %s", want, p.PostedAt)
	}
	if strings.Contains(p.Description, "<") {
		t.Fatalf("expected markup to be stripped, got %q", p.Description)
	}
	for _, want := range []string{"Design APIs", "Go\nPostgres", "Key skills: Go, Kafka"} {
		if !strings.Contains(p.Description, want) {
			t.Fatalf("expected description to contain %q, got %q", want, p.Description)
		}
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	q := buildParams(&SearchParams{
		Text:      "golang",
		Areas:     []int{1, 2},
		Schedules: []string{"remote"},
		PerPage:   "50",
	})

	if got := q["area"]; len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("unexpected area params %v", got)
	}
	if q.Get("schedule") != "remote" || q.Get("per_page") != "50" || q.Get("text") != "golang" {
		t.Fatalf("unexpected params %v", q)
	}
	if q.Has("employer_id") || q.Has("period") {
		t.Fatalf("expected zero values to be skipped, got %v", q)
	}
}
