package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/jobs"
)

const (
	microsoftURL       = "https://gcsservices.careers.microsoft.com/search/api/v1/search"
	microsoftJobURL    = "https://careers.microsoft.com/us/en/jobs/"
	microsoftCompany   = "Microsoft"
	microsoftPageSize  = 20
	microsoftIndustry  = "Technology"
	microsoftSizeLabel = "Large Enterprise"
)

type microsoftResponse struct {
	OperationResult struct {
		Result struct {
			Jobs      []Record `json:"jobs"`
			TotalJobs int      `json:"totalJobs"`
		} `json:"result"`
	} `json:"operationResult"`
}

type microsoftPosting struct {
	JobID          string `json:"jobId"`
	Title          string `json:"title"`
	Location       string `json:"location"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	AdditionalInfo string `json:"additionalInfo"`
	PostingDate    string `json:"postingDate"`
	EmploymentType string `json:"employmentType"`
}

// Microsoft reads the Microsoft careers search API, a company portal.
type Microsoft struct {
	name     string
	url      string
	keywords []string
	location string
	maxPages int
	client   *Client
	logger   *zap.Logger
}

func newMicrosoft(cfg Config, client *Client, logger *zap.Logger) (Adapter, error) {
	m := &Microsoft{
		name:     cfg.Name,
		url:      cfg.URL,
		keywords: cfg.Keywords,
		location: cfg.Location,
		maxPages: cfg.MaxPages,
		client:   client,
		logger:   logger,
	}
	if m.url == "" {
		m.url = microsoftURL
	}
	if m.maxPages <= 0 {
		m.maxPages = 5
	}
	if len(m.keywords) == 0 {
		m.keywords = []string{""}
	}
	return m, nil
}

func (m *Microsoft) Name() string { return m.name }
func (m *Microsoft) Kind() jobs.SourceType { return jobs.SourceCompanyPortal }

func (m *Microsoft) Fetch(ctx context.Context) ([]Record, error) {
	var records []Record
	seen := make(map[string]bool)

	for _, keyword := range m.keywords {
		q := url.Values{}
		q.Set("q", keyword)
		q.Set("pgSz", strconv.Itoa(microsoftPageSize))
		if m.location != "" {
			q.Set("lc", m.location)
		}

		fetched := 0
		for page := 1; page <= m.maxPages; page++ {
			var resp microsoftResponse
			if err := m.client.getJSON(ctx, m.name, m.url, withPage(q, "pg", page), &resp); err != nil {
				return nil, err
			}

			batch := resp.OperationResult.Result.Jobs
			for _, rec := range batch {
				id := fmt.Sprint(rec["jobId"])
				if seen[id] {
					continue
				}
				seen[id] = true
				records = append(records, rec)
			}

			fetched += len(batch)
			if len(batch) < microsoftPageSize || fetched >= resp.OperationResult.Result.TotalJobs {
				break
			}
			m.logger.Debug("additional request needed", zap.String("keyword", keyword), zap.Int("page", page+1))
		}
	}

	return records, nil
}

func (m *Microsoft) Normalize(rec Record) (*jobs.Job, error) {
	var p microsoftPosting
	if err := decode(rec, &p); err != nil {
		return nil, fmt.Errorf("decode microsoft posting: %w", err)
	}
	if strings.TrimSpace(p.JobID) == "" {
		return nil, invalid(m.name, "", "source_job_id", "is required")
	}

	location := strings.TrimSpace(p.Location)
	remote := jobs.RemoteUnknown
	switch strings.ToLower(location) {
	case "remote", "virtual":
		remote = jobs.RemoteRemote
	}

	description := htmlText(strings.TrimSpace(p.Description + " " + p.AdditionalInfo))

	job := &jobs.Job{
		Source:          m.name,
		SourceJobID:     p.JobID,
		SourceType:      jobs.SourceCompanyPortal,
		Title:           strings.TrimSpace(p.Title),
		Company:         microsoftCompany,
		Department:      strings.TrimSpace(p.Category),
		Location:        location,
		Remote:          remote,
		Description:     description,
		ApplyURL:        microsoftJobURL + url.PathEscape(p.JobID),
		PostedAt:        parseTime(p.PostingDate),
		CompanyIndustry: microsoftIndustry,
		CompanySize:     microsoftSizeLabel,
		ContractType:    strings.TrimSpace(p.EmploymentType),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}
