package sources

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/jobs"
)

const greenhouseURL = "https://boards-api.greenhouse.io/v1/boards/"

type greenhouseResponse struct {
	Jobs []Record `json:"jobs"`
}

type greenhousePosting struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	UpdatedAt   string `json:"updated_at"`
	Content     string `json:"content"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

// Greenhouse reads one company's public Greenhouse job board. Boards are run
// by the employer, so records count as company portal postings.
type Greenhouse struct {
	name    string
	url     string
	company string
	client  *Client
	logger  *zap.Logger
}

func newGreenhouse(cfg Config, client *Client, logger *zap.Logger) (Adapter, error) {
	if cfg.Board == "" {
		return nil, errors.New("greenhouse source needs a board token")
	}
	g := &Greenhouse{
		name:    cfg.Name,
		url:     cfg.URL,
		company: cfg.Company,
		client:  client,
		logger:  logger,
	}
	if g.url == "" {
		g.url = greenhouseURL
	}
	g.url = strings.TrimSuffix(g.url, "/") + "/" + url.PathEscape(cfg.Board) + "/jobs"
	if g.company == "" {
		g.company = cfg.Board
	}
	return g, nil
}

func (g *Greenhouse) Name() string { return g.name }
func (g *Greenhouse) Kind() jobs.SourceType { return jobs.SourceCompanyPortal }

// Fetch returns the whole board; the API does not paginate.
func (g *Greenhouse) Fetch(ctx context.Context) ([]Record, error) {
	q := url.Values{}
	q.Set("content", "true")

	var resp greenhouseResponse
	if err := g.client.getJSON(ctx, g.name, g.url, q, &resp); err != nil {
		return nil, err
	}
	g.logger.Debug("got board", zap.Int("jobs", len(resp.Jobs)))

	return resp.Jobs, nil
}

func (g *Greenhouse) Normalize(rec Record) (*jobs.Job, error) {
	var p greenhousePosting
	if err := decode(rec, &p); err != nil {
		return nil, fmt.Errorf("decode greenhouse posting: %w", err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, invalid(g.name, "", "source_job_id", "is required")
	}

	var department string
	if len(p.Departments) > 0 {
		department = strings.TrimSpace(p.Departments[0].Name)
	}
	location := strings.TrimSpace(p.Location.Name)

	remote := jobs.ParseRemote(location)
	if remote == jobs.RemoteUnknown && strings.Contains(strings.ToLower(location), "remote") {
		remote = jobs.RemoteRemote
	}

	job := &jobs.Job{
		Source:      g.name,
		SourceJobID: p.ID,
		SourceType:  jobs.SourceCompanyPortal,
		Title:       strings.TrimSpace(p.Title),
		Company:     g.company,
		Department:  department,
		Location:    location,
		Remote:      remote,
		// Board content is entity-escaped HTML.
		Description: htmlText(html.UnescapeString(p.Content)),
		ApplyURL:    p.AbsoluteURL,
		PostedAt:    parseTime(p.UpdatedAt),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}
