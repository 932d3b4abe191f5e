package domain

import "time"

// Status is the tri-state coverage severity for a team or an entity on one day.
type Status string

const (
	StatusCovered  Status = "covered"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Severity ranks statuses for worst-of aggregation and presentation ordering.
func (s Status) Severity() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Worse returns the more severe of the two statuses.
func (s Status) Worse(other Status) Status {
	if other.Severity() > s.Severity() {
		return other
	}
	return s
}

// LeaveKind classifies a leave interval.
type LeaveKind string

const (
	LeaveVacation       LeaveKind = "vacation"
	LeaveCompanyHoliday LeaveKind = "company_holiday"
	LeavePublicHoliday  LeaveKind = "public_holiday"
)

// EntityKind tells customers and regions apart in reports.
type EntityKind string

const (
	EntityCustomer EntityKind = "customer"
	EntityRegion   EntityKind = "region"
)

type Employee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	Team    string `json:"team"`
}

// Requirement demands a minimum available headcount from each of its teams.
// The minimum applies per team, not to the combined pool.
type Requirement struct {
	Teams []string `json:"teams"`
	Min   int      `json:"min"`
}

type Customer struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Country      string        `json:"country,omitempty"`
	Requirements []Requirement `json:"requirements"`
}

// Region is evaluated like a Customer except that its staff pool is
// additionally restricted to employees whose country is in Countries.
type Region struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Countries    []string      `json:"countries"`
	Requirements []Requirement `json:"requirements"`
}

// LeaveInterval is a half-open day range [Start, End) during which an employee
// (vacation) or a population (holiday) is unavailable. EmployeeName carries the
// raw calendar-entry name for vacations; Countries holds lower-cased country
// codes for public holidays.
type LeaveInterval struct {
	Kind         LeaveKind `json:"kind"`
	Start        time.Time `json:"start" format:"date-time"`
	End          time.Time `json:"end" format:"date-time"`
	EmployeeName string    `json:"employee_name,omitempty"`
	Countries    []string  `json:"countries,omitempty"`
}

// Covers reports whether the interval covers the given day.
func (l LeaveInterval) Covers(day time.Time) bool {
	return !day.Before(l.Start) && day.Before(l.End)
}

// TeamStatus is the evaluation of one (requirement, team) pair on one day.
type TeamStatus struct {
	Team      string   `json:"team"`
	Total     int      `json:"total"`
	Available int      `json:"available"`
	Min       int      `json:"min"`
	Status    Status   `json:"status"`
	OnLeave   []string `json:"on_leave,omitempty"`
}

// CoverageResult is the aggregated outcome for one entity on one day. It is
// created fresh per evaluation and never mutated afterwards.
type CoverageResult struct {
	Status      Status   `json:"status"`
	DetailLines []string `json:"detail_lines,omitempty"`
	Summary     []string `json:"summary,omitempty"`
}

// AuditEvent is one row of the append-only audit log.
type AuditEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// DayReport pairs a CoverageResult with the entity and day it describes.
type DayReport struct {
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   string     `json:"entity_id"`
	EntityName string     `json:"entity_name"`
	Day        time.Time  `json:"day" format:"date-time"`
	CoverageResult
}
