package coverplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Coverplan HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Employee is the API employee model.
type Employee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	Team    string `json:"team"`
}

// Requirement demands a minimum available headcount per team.
type Requirement struct {
	Teams []string `json:"teams"`
	Min   int      `json:"min"`
}

// Customer is the API customer model.
type Customer struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Country      string        `json:"country,omitempty"`
	Requirements []Requirement `json:"requirements"`
}

// Region is the API region model.
type Region struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Countries    []string      `json:"countries"`
	Requirements []Requirement `json:"requirements"`
}

// LeaveInterval is one half-open day range of unavailability.
type LeaveInterval struct {
	Kind         string   `json:"kind"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	EmployeeName string   `json:"employee_name,omitempty"`
	Countries    []string `json:"countries,omitempty"`
}

// DayReport is one entity-day result.
type DayReport struct {
	EntityKind string   `json:"entity_kind"`
	EntityID   string   `json:"entity_id"`
	EntityName string   `json:"entity_name"`
	Day        string   `json:"day"`
	Status     string   `json:"status"`
	Detail     []string `json:"detail,omitempty"`
	Summary    []string `json:"summary,omitempty"`
}

// ReportStats summarizes one evaluation run.
type ReportStats struct {
	Days        int `json:"days"`
	Critical    int `json:"critical"`
	Warning     int `json:"warning"`
	Covered     int `json:"covered"`
	Ambiguities int `json:"ambiguities"`
}

// Report wraps the report endpoint response.
type Report struct {
	Items []DayReport `json:"items"`
	Stats ReportStats `json:"stats"`
}

// Event is one audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// AddEmployee adds one employee to the roster.
func (c *Client) AddEmployee(ctx context.Context, name, team, country string) (Employee, error) {
	body := map[string]any{
		"name":    name,
		"team":    team,
		"country": country,
	}
	var resp Employee
	err := c.do(ctx, http.MethodPost, "v0/employees", body, &resp)
	return resp, err
}

// AddCustomer adds one customer with its requirements.
func (c *Client) AddCustomer(ctx context.Context, name, country string, reqs []Requirement) (Customer, error) {
	body := map[string]any{
		"name":         name,
		"country":      country,
		"requirements": reqs,
	}
	var resp Customer
	err := c.do(ctx, http.MethodPost, "v0/customers", body, &resp)
	return resp, err
}

// AddRegion adds one region with its requirements.
func (c *Client) AddRegion(ctx context.Context, name string, countries []string, reqs []Requirement) (Region, error) {
	body := map[string]any{
		"name":         name,
		"countries":    countries,
		"requirements": reqs,
	}
	var resp Region
	err := c.do(ctx, http.MethodPost, "v0/regions", body, &resp)
	return resp, err
}

// ImportLeaves stores leave intervals, optionally replacing stored ones.
func (c *Client) ImportLeaves(ctx context.Context, intervals []LeaveInterval, replace bool) error {
	endpoint := "v0/leaves"
	if replace {
		endpoint += "?replace=true"
	}
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"intervals": intervals}, nil)
}

// ImportRosterCSV replaces the roster from CSV content.
func (c *Client) ImportRosterCSV(ctx context.Context, csvContent string) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/v0/roster/import", strings.NewReader(csvContent))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/csv")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}

// GetReport fetches the coverage report for [from, to). Empty from/to use the
// server's configured window.
func (c *Client) GetReport(ctx context.Context, from, to string, includeCovered bool) (Report, error) {
	endpoint := "v0/report"
	params := []string{}
	if from != "" {
		params = append(params, "from="+from)
	}
	if to != "" {
		params = append(params, "to="+to)
	}
	if includeCovered {
		params = append(params, "include_covered=true")
	}
	if len(params) > 0 {
		endpoint += "?" + strings.Join(params, "&")
	}
	var resp Report
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
