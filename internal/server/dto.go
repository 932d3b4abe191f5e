package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coverplan/internal/coverage"
	"coverplan/internal/domain"
)

// Request payloads

type CreateEmployeeRequest struct {
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	Team    string `json:"team"`
}

type RequirementRequest struct {
	Teams []string `json:"teams"`
	Min   int      `json:"min"`
}

type CreateCustomerRequest struct {
	Name         string               `json:"name"`
	Country      string               `json:"country,omitempty"`
	Requirements []RequirementRequest `json:"requirements,omitempty"`
}

type CreateRegionRequest struct {
	Name         string               `json:"name"`
	Countries    []string             `json:"countries"`
	Requirements []RequirementRequest `json:"requirements,omitempty"`
}

type LeaveIntervalRequest struct {
	Kind         string   `json:"kind" enum:"vacation,company_holiday,public_holiday"`
	Start        string   `json:"start" doc:"First day covered, YYYY-MM-DD"`
	End          string   `json:"end" doc:"First day not covered, YYYY-MM-DD"`
	EmployeeName string   `json:"employee_name,omitempty"`
	Countries    []string `json:"countries,omitempty"`
}

type ImportLeavesRequest struct {
	Intervals []LeaveIntervalRequest `json:"intervals"`
}

// Response payloads

type EmployeeResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	Team    string `json:"team"`
}

type CustomerResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Country      string               `json:"country,omitempty"`
	Requirements []RequirementRequest `json:"requirements"`
}

type RegionResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Countries    []string             `json:"countries"`
	Requirements []RequirementRequest `json:"requirements"`
}

type ImportLeavesResponse struct {
	Imported int  `json:"imported"`
	Replaced bool `json:"replaced"`
}

type RosterImportResponse struct {
	Employees int `json:"employees"`
	Customers int `json:"customers"`
	Regions   int `json:"regions"`
}

type DayReportResponse struct {
	EntityKind string   `json:"entity_kind" enum:"customer,region"`
	EntityID   string   `json:"entity_id"`
	EntityName string   `json:"entity_name"`
	Day        string   `json:"day"`
	Status     string   `json:"status" enum:"covered,warning,critical"`
	Detail     []string `json:"detail,omitempty"`
	Summary    []string `json:"summary,omitempty"`
}

type ReportStatsResponse struct {
	Days        int `json:"days"`
	Critical    int `json:"critical"`
	Warning     int `json:"warning"`
	Covered     int `json:"covered"`
	Ambiguities int `json:"ambiguities"`
}

type ReportResponse struct {
	Items []DayReportResponse `json:"items"`
	Stats ReportStatsResponse `json:"stats"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func employeeResponse(e domain.Employee) EmployeeResponse {
	return EmployeeResponse(e)
}

func customerResponse(c domain.Customer) CustomerResponse {
	return CustomerResponse{
		ID:           c.ID,
		Name:         c.Name,
		Country:      c.Country,
		Requirements: mapRequirementResponses(c.Requirements),
	}
}

func regionResponse(r domain.Region) RegionResponse {
	return RegionResponse{
		ID:           r.ID,
		Name:         r.Name,
		Countries:    nonNilSlice(r.Countries),
		Requirements: mapRequirementResponses(r.Requirements),
	}
}

func mapRequirementResponses(reqs []domain.Requirement) []RequirementRequest {
	res := []RequirementRequest{}
	for _, req := range reqs {
		res = append(res, RequirementRequest{Teams: req.Teams, Min: req.Min})
	}
	return res
}

func mapRequirements(reqs []RequirementRequest) ([]domain.Requirement, error) {
	var res []domain.Requirement
	for _, req := range reqs {
		if len(req.Teams) == 0 {
			return nil, fmt.Errorf("requirement teams are required")
		}
		if req.Min < 0 {
			return nil, fmt.Errorf("invalid requirement min %d", req.Min)
		}
		res = append(res, domain.Requirement{Teams: req.Teams, Min: req.Min})
	}
	return res, nil
}

func mapLeaves(in []LeaveIntervalRequest) ([]domain.LeaveInterval, error) {
	var res []domain.LeaveInterval
	for _, l := range in {
		kind := domain.LeaveKind(l.Kind)
		switch kind {
		case domain.LeaveVacation, domain.LeaveCompanyHoliday, domain.LeavePublicHoliday:
		default:
			return nil, fmt.Errorf("invalid leave kind %q", l.Kind)
		}
		start, err := time.Parse("2006-01-02", l.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid leave start %q", l.Start)
		}
		end, err := time.Parse("2006-01-02", l.End)
		if err != nil {
			return nil, fmt.Errorf("invalid leave end %q", l.End)
		}
		if !start.Before(end) {
			return nil, fmt.Errorf("invalid leave interval: start %s is not before end %s", l.Start, l.End)
		}
		if kind == domain.LeaveVacation && l.EmployeeName == "" {
			return nil, fmt.Errorf("employee_name is required for vacation intervals")
		}
		res = append(res, domain.LeaveInterval{
			Kind:         kind,
			Start:        start,
			End:          end,
			EmployeeName: l.EmployeeName,
			Countries:    lowerAll(l.Countries),
		})
	}
	return res, nil
}

func reportResponse(items []domain.DayReport, stats coverage.RunStats) ReportResponse {
	res := ReportResponse{
		Items: []DayReportResponse{},
		Stats: ReportStatsResponse{
			Days:        stats.Days,
			Critical:    stats.Critical,
			Warning:     stats.Warning,
			Covered:     stats.Covered,
			Ambiguities: stats.Ambiguities,
		},
	}
	for _, r := range items {
		res.Items = append(res.Items, DayReportResponse{
			EntityKind: string(r.EntityKind),
			EntityID:   r.EntityID,
			EntityName: r.EntityName,
			Day:        r.Day.Format("2006-01-02"),
			Status:     string(r.Status),
			Detail:     r.DetailLines,
			Summary:    r.Summary,
		})
	}
	return res
}

func eventResponse(e domain.AuditEvent) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func lowerAll(in []string) []string {
	var res []string
	for _, s := range in {
		res = append(res, strings.ToLower(s))
	}
	return res
}
