// Package headhunter fetches vacancies from the hh.ru API and converts them into job postings.
package headhunter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/leads/internal/jobs"
)

const (
	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/leads (spigelly@gmail.com)"
	// Max value for search per page.
	perPage = "100"

	// Source is stamped on every posting produced by this package.
	Source = "headhunter"
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New returns a client. An empty token is allowed: vacancy search is public.
func New(logger *zap.Logger, token string) *Client {
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

func (c *Client) Search(ctx context.Context, params *SearchParams) (*Vacancies, error) {
	return c.search(ctx, params)
}

// GetVacancy returns the full vacancy including its description and key skills.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	var vacancy Vacancy
	if err := c.getJSON(ctx, fmt.Sprintf("%s%s/%s", c.APIURL, SearchPath, id), nil, &vacancy); err != nil {
		return nil, fmt.Errorf("get vacancy %s: %w", id, err)
	}

	return &vacancy, nil
}

// Postings runs the search and converts the result. When details is set every vacancy
// is fetched on its own so the posting carries the full description instead of the snippet.
// A failed detail request falls back to the search item.
func (c *Client) Postings(ctx context.Context, params *SearchParams, details bool) (*jobs.Postings, error) {
	vacancies, err := c.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	if details {
		for idx, v := range vacancies.Items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if v.Archived {
				continue
			}

			full, err := c.GetVacancy(ctx, v.ID)
			if err != nil {
				c.logger.Warn("vacancy details unavailable, using search snippet",
					zap.String("id", v.ID),
					zap.Error(err),
				)
				continue
			}
			// The details endpoint has no snippet.
			full.Snipet = v.Snipet
			vacancies.Items[idx] = full
		}
	}

	return vacancies.Postings(), nil
}
