package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kurihiro0119/github-social-relay/internal/domain"
)

// Client is the API client for a running github-social-relay server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Health is the body of GET /health
type Health struct {
	Status          string   `json:"status"`
	SupportedEvents []string `json:"supported_events"`
	DailyPostTime   string   `json:"daily_post_time"`
	PostingMethod   string   `json:"posting_method"`
	ReviewRequired  bool     `json:"review_required"`
	ImmediatePost   bool     `json:"immediate_post"`
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck checks if the API is healthy and returns its settings
func (c *Client) HealthCheck() (*Health, error) {
	var response Health
	if err := c.get("/health", nil, &response); err != nil {
		return nil, err
	}
	if response.Status != "ok" {
		return &response, fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return &response, nil
}

// GetStats retrieves the pending event counts of one day; "" means today
func (c *Client) GetStats(date string) (*domain.DayStats, error) {
	params := url.Values{}
	if date != "" {
		params.Set("date", date)
	}

	var response domain.DayStats
	if err := c.get("/stats", params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetRangeStats retrieves pending and posted event counts over a date range
func (c *Client) GetRangeStats(start, end time.Time, granularity string) (*domain.RangeStats, error) {
	params := c.buildTimeParams(start, end, granularity)

	var response struct {
		Data *domain.RangeStats `json:"data"`
	}
	if err := c.get("/api/v1/stats/range", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

func (c *Client) buildTimeParams(start, end time.Time, granularity string) url.Values {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.Format(domain.DateLayout))
	}
	if !end.IsZero() {
		params.Set("end", end.Format(domain.DateLayout))
	}
	if granularity != "" {
		params.Set("granularity", granularity)
	}
	return params
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
