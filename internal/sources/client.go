package sources

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "spigell/jobhunter (spigelly@gmail.com)"
)

// Client is the HTTP client shared by the remote adapters.
type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient returns a client with sane defaults. The per-request deadline is
// normally imposed by the caller's context.
func NewClient(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
	}
}

// getJSON makes a GET request and decodes the JSON body into target.
// Transport failures, 5xx and 429 answers are reported as
// *SourceUnavailableError so the caller can retry them.
func (c *Client) getJSON(ctx context.Context, source, rawURL string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.request(req)
	if err != nil {
		return &SourceUnavailableError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return &SourceUnavailableError{Source: source, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("unexpected response",
			zap.String("source", source),
			zap.Int("status", resp.StatusCode),
			zap.String("body_preview", utils.Preview(string(data), 200)),
		)
		statusErr := fmt.Errorf("bad status: %s", resp.Status)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return &SourceUnavailableError{Source: source, StatusCode: resp.StatusCode, Err: statusErr}
		}
		return statusErr
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s response: %w", source, err)
	}

	return nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

// withPage returns a copy of q with the page parameter set.
func withPage(q url.Values, key string, page int) url.Values {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Set(key, strconv.Itoa(page))
	return out
}
