package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/jobs"
)

const (
	githubURL      = "https://jobs.github.com/positions.json"
	githubPageSize = 50
)

// githubPosting is the positions.json item.
type githubPosting struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
	Company     string `json:"company"`
	CompanyURL  string `json:"company_url"`
	Location    string `json:"location"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GitHub reads the GitHub jobs board, an aggregator.
type GitHub struct {
	name     string
	url      string
	keywords []string
	location string
	maxPages int
	client   *Client
	logger   *zap.Logger
}

func newGitHub(cfg Config, client *Client, logger *zap.Logger) (Adapter, error) {
	g := &GitHub{
		name:     cfg.Name,
		url:      cfg.URL,
		keywords: cfg.Keywords,
		location: cfg.Location,
		maxPages: cfg.MaxPages,
		client:   client,
		logger:   logger,
	}
	if g.url == "" {
		g.url = githubURL
	}
	if g.maxPages <= 0 {
		g.maxPages = 5
	}
	if len(g.keywords) == 0 {
		g.keywords = []string{""}
	}
	return g, nil
}

func (g *GitHub) Name() string { return g.name }
func (g *GitHub) Kind() jobs.SourceType { return jobs.SourceAggregator }

// Fetch pages through every keyword until a short page is returned.
func (g *GitHub) Fetch(ctx context.Context) ([]Record, error) {
	var records []Record
	seen := make(map[string]bool)

	for _, keyword := range g.keywords {
		q := url.Values{}
		if keyword != "" {
			q.Set("description", keyword)
		}
		if g.location != "" {
			q.Set("location", g.location)
		}

		for page := 0; page < g.maxPages; page++ {
			var batch []Record
			if err := g.client.getJSON(ctx, g.name, g.url, withPage(q, "page", page), &batch); err != nil {
				return nil, err
			}

			for _, rec := range batch {
				id := fmt.Sprint(rec["id"])
				if seen[id] {
					continue
				}
				seen[id] = true
				records = append(records, rec)
			}

			if len(batch) < githubPageSize {
				break
			}
			g.logger.Debug("additional request needed", zap.String("keyword", keyword), zap.Int("page", page+1))
		}
	}

	return records, nil
}

func (g *GitHub) Normalize(rec Record) (*jobs.Job, error) {
	var p githubPosting
	if err := decode(rec, &p); err != nil {
		return nil, fmt.Errorf("decode github posting: %w", err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, invalid(g.name, "", "source_job_id", "is required")
	}

	// The board's "type" is the contract (Full Time, Contract), not a work location.
	job := &jobs.Job{
		Source:       g.name,
		SourceJobID:  p.ID,
		SourceType:   jobs.SourceAggregator,
		Title:        strings.TrimSpace(p.Title),
		Company:      strings.TrimSpace(p.Company),
		Location:     strings.TrimSpace(p.Location),
		Remote:       jobs.ParseRemote(p.Location),
		Description:  htmlText(p.Description),
		ApplyURL:     p.URL,
		PostedAt:     parseTime(p.CreatedAt),
		ContractType: strings.TrimSpace(p.Type),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}
