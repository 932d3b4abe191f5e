// Package csvio reads and writes the roster CSV format:
//
//	type,name,country,required_employee_per_team,required_team
//	customer,Heron,AUH,1,Support Team
//	customer,Hawk,QAR,3,"Support Team, Dev Team"
//	region,Europe,"POL, SPA",2,Support Team
//	employee,Akshay,Support Team,POL,
//
// Customer and region rows aggregate requirements across rows sharing a name;
// a row naming several teams adds one requirement per team count with the same
// minimum. Employee rows carry the team in the country column (a quirk kept
// from the spreadsheet template) and may carry a home country in the fourth.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"coverplan/internal/domain"
)

var (
	ErrInvalidFieldCount = errors.New("invalid field count")
	ErrInvalidRowType    = errors.New("invalid row type")
	ErrMissingName       = errors.New("missing name")
	ErrInvalidMin        = errors.New("invalid required employee count")
	ErrMissingTeams      = errors.New("missing required team")
)

// ParseError wraps a row-level error with its location in the input.
type ParseError struct {
	Line   int
	Record []string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %v (record: %v)", e.Line, e.Err, e.Record)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Roster is the parsed result of one import file.
type Roster struct {
	Employees []domain.Employee
	Customers []domain.Customer
	Regions   []domain.Region
}

// Parse reads the roster CSV. Header rows and lines starting with '#' are
// skipped.
func Parse(r io.Reader) (Roster, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var roster Roster
	customersByName := map[string]int{}
	regionsByName := map[string]int{}
	line := 0
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return Roster{}, fmt.Errorf("read csv at line %d: %w", line, err)
		}
		if len(record) == 0 || strings.HasPrefix(record[0], "#") {
			continue
		}
		rowType := strings.ToLower(strings.TrimSpace(record[0]))
		if rowType == "type" {
			continue // header
		}
		if len(record) < 3 {
			return Roster{}, &ParseError{Line: line, Record: record, Err: ErrInvalidFieldCount}
		}
		name := strings.TrimSpace(record[1])
		if name == "" {
			return Roster{}, &ParseError{Line: line, Record: record, Err: ErrMissingName}
		}
		switch rowType {
		case "employee":
			country := ""
			if len(record) > 3 {
				country = strings.ToLower(strings.TrimSpace(record[3]))
			}
			roster.Employees = append(roster.Employees, domain.Employee{
				ID:      uuid.New().String(),
				Name:    name,
				Team:    strings.TrimSpace(record[2]),
				Country: country,
			})
		case "customer":
			reqs, err := rowRequirements(record)
			if err != nil {
				return Roster{}, &ParseError{Line: line, Record: record, Err: err}
			}
			if idx, ok := customersByName[name]; ok {
				roster.Customers[idx].Requirements = append(roster.Customers[idx].Requirements, reqs...)
				continue
			}
			roster.Customers = append(roster.Customers, domain.Customer{
				ID:           uuid.New().String(),
				Name:         name,
				Country:      strings.ToLower(strings.TrimSpace(record[2])),
				Requirements: reqs,
			})
			customersByName[name] = len(roster.Customers) - 1
		case "region":
			reqs, err := rowRequirements(record)
			if err != nil {
				return Roster{}, &ParseError{Line: line, Record: record, Err: err}
			}
			if idx, ok := regionsByName[name]; ok {
				roster.Regions[idx].Requirements = append(roster.Regions[idx].Requirements, reqs...)
				continue
			}
			roster.Regions = append(roster.Regions, domain.Region{
				ID:           uuid.New().String(),
				Name:         name,
				Countries:    splitList(strings.ToLower(record[2])),
				Requirements: reqs,
			})
			regionsByName[name] = len(roster.Regions) - 1
		default:
			return Roster{}, &ParseError{Line: line, Record: record, Err: ErrInvalidRowType}
		}
	}
	return roster, nil
}

// rowRequirements builds one requirement per team named in the row, all with
// the row's minimum.
func rowRequirements(record []string) ([]domain.Requirement, error) {
	if len(record) < 5 {
		return nil, ErrInvalidFieldCount
	}
	min, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMin, err)
	}
	teams := splitList(record[4])
	if len(teams) == 0 {
		return nil, ErrMissingTeams
	}
	var reqs []domain.Requirement
	for _, team := range teams {
		reqs = append(reqs, domain.Requirement{Teams: []string{team}, Min: min})
	}
	return reqs, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Template is the downloadable import template.
const Template = `type,name,country,required_employee_per_team,required_team
customer,Heron,AUH,1,Support Team
customer,Heron,AUH,2,Dev Team
customer,Hawk,QAR,3,"Support Team, Dev Team"
region,Europe,"POL, SPA",2,Support Team
employee,Akshay,Support Team,POL,
employee,Bob,Support Team,,
employee,Carol,Dev Team,,
`

// Export writes the roster back out in the import format.
func Export(w io.Writer, roster Roster) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"type", "name", "country", "required_employee_per_team", "required_team"}); err != nil {
		return err
	}
	for _, c := range roster.Customers {
		for _, req := range c.Requirements {
			row := []string{"customer", c.Name, strings.ToUpper(c.Country), strconv.Itoa(req.Min), strings.Join(req.Teams, ", ")}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	for _, r := range roster.Regions {
		for _, req := range r.Requirements {
			row := []string{"region", r.Name, strings.ToUpper(strings.Join(r.Countries, ", ")), strconv.Itoa(req.Min), strings.Join(req.Teams, ", ")}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	for _, e := range roster.Employees {
		if err := cw.Write([]string{"employee", e.Name, e.Team, strings.ToUpper(e.Country), ""}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
