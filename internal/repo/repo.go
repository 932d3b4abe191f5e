package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coverplan/internal/coverage"
	"coverplan/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const dayFormat = "2006-01-02"

// --- employees ---

func (r Repo) InsertEmployee(ctx context.Context, e domain.Employee) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO employees(id,name,country,team) VALUES (?,?,?,?)`,
		e.ID, e.Name, nullable(e.Country), e.Team)
	return err
}

func (r Repo) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(country,'') AS country,team FROM employees ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employee
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Country, &e.Team); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) DeleteEmployee(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM employees WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- customers ---

func (r Repo) InsertCustomer(ctx context.Context, c domain.Customer) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertCustomerTx(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

func insertCustomerTx(ctx context.Context, tx *sql.Tx, c domain.Customer) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO customers(id,name,country) VALUES (?,?,?)`,
		c.ID, c.Name, nullable(c.Country)); err != nil {
		return fmt.Errorf("insert customer %s: %w", c.Name, err)
	}
	return insertRequirementsTx(ctx, tx, string(domain.EntityCustomer), c.ID, c.Requirements)
}

func (r Repo) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(country,'') AS country FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Country); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		reqs, err := r.listRequirements(ctx, string(domain.EntityCustomer), res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Requirements = reqs
	}
	return res, nil
}

// --- regions ---

func (r Repo) InsertRegion(ctx context.Context, reg domain.Region) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertRegionTx(ctx, tx, reg); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRegionTx(ctx context.Context, tx *sql.Tx, reg domain.Region) error {
	countries, err := json.Marshal(reg.Countries)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO regions(id,name,countries_json) VALUES (?,?,?)`,
		reg.ID, reg.Name, string(countries)); err != nil {
		return fmt.Errorf("insert region %s: %w", reg.Name, err)
	}
	return insertRequirementsTx(ctx, tx, string(domain.EntityRegion), reg.ID, reg.Requirements)
}

func (r Repo) ListRegions(ctx context.Context) ([]domain.Region, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,countries_json FROM regions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Region
	for rows.Next() {
		var reg domain.Region
		var countries string
		if err := rows.Scan(&reg.ID, &reg.Name, &countries); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(countries), &reg.Countries); err != nil {
			return nil, fmt.Errorf("region %s countries: %w", reg.Name, err)
		}
		res = append(res, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		reqs, err := r.listRequirements(ctx, string(domain.EntityRegion), res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Requirements = reqs
	}
	return res, nil
}

// --- requirements ---

func insertRequirementsTx(ctx context.Context, tx *sql.Tx, ownerKind, ownerID string, reqs []domain.Requirement) error {
	for _, req := range reqs {
		teams, err := json.Marshal(req.Teams)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO requirements(owner_kind,owner_id,teams_json,min_available) VALUES (?,?,?,?)`,
			ownerKind, ownerID, string(teams), req.Min); err != nil {
			return fmt.Errorf("insert requirement for %s %s: %w", ownerKind, ownerID, err)
		}
	}
	return nil
}

func (r Repo) listRequirements(ctx context.Context, ownerKind, ownerID string) ([]domain.Requirement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT teams_json,min_available FROM requirements WHERE owner_kind=? AND owner_id=? ORDER BY id`, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Requirement
	for rows.Next() {
		var req domain.Requirement
		var teams string
		if err := rows.Scan(&teams, &req.Min); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(teams), &req.Teams); err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// --- leave intervals ---

func (r Repo) InsertLeaveIntervals(ctx context.Context, tx *sql.Tx, leaves []domain.LeaveInterval) error {
	for _, l := range leaves {
		countries, err := json.Marshal(l.Countries)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO leave_intervals(kind,start_day,end_day,employee_name,countries_json) VALUES (?,?,?,?,?)`,
			string(l.Kind), l.Start.UTC().Format(dayFormat), l.End.UTC().Format(dayFormat),
			nullable(l.EmployeeName), string(countries)); err != nil {
			return fmt.Errorf("insert leave interval: %w", err)
		}
	}
	return nil
}

// ListLeaveIntervals returns intervals overlapping [from, to).
func (r Repo) ListLeaveIntervals(ctx context.Context, from, to time.Time) ([]domain.LeaveInterval, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT kind,start_day,end_day,COALESCE(employee_name,'') AS employee_name,COALESCE(countries_json,'null') AS countries_json
		 FROM leave_intervals WHERE start_day < ? AND end_day > ? ORDER BY start_day, id`,
		to.UTC().Format(dayFormat), from.UTC().Format(dayFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LeaveInterval
	for rows.Next() {
		var l domain.LeaveInterval
		var kind, start, end, countries string
		if err := rows.Scan(&kind, &start, &end, &l.EmployeeName, &countries); err != nil {
			return nil, err
		}
		l.Kind = domain.LeaveKind(kind)
		if l.Start, err = time.Parse(dayFormat, start); err != nil {
			return nil, fmt.Errorf("leave interval start: %w", err)
		}
		if l.End, err = time.Parse(dayFormat, end); err != nil {
			return nil, fmt.Errorf("leave interval end: %w", err)
		}
		if err := json.Unmarshal([]byte(countries), &l.Countries); err != nil {
			return nil, fmt.Errorf("leave interval countries: %w", err)
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) DeleteLeaveIntervals(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM leave_intervals`)
	return err
}

// --- snapshot ---

// ReplaceRoster swaps the stored roster for the given one in a single
// transaction. Used by CSV import.
func (r Repo) ReplaceRoster(ctx context.Context, tx *sql.Tx, snap coverage.Snapshot) error {
	for _, table := range []string{"requirements", "customers", "regions", "employees"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, e := range snap.Employees {
		if _, err := tx.ExecContext(ctx, `INSERT INTO employees(id,name,country,team) VALUES (?,?,?,?)`,
			e.ID, e.Name, nullable(e.Country), e.Team); err != nil {
			return fmt.Errorf("insert employee %s: %w", e.Name, err)
		}
	}
	for _, c := range snap.Customers {
		if err := insertCustomerTx(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, reg := range snap.Regions {
		if err := insertRegionTx(ctx, tx, reg); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot reads the full roster for one evaluation call.
func (r Repo) LoadSnapshot(ctx context.Context) (coverage.Snapshot, error) {
	var snap coverage.Snapshot
	var err error
	if snap.Employees, err = r.ListEmployees(ctx); err != nil {
		return snap, fmt.Errorf("load employees: %w", err)
	}
	if snap.Customers, err = r.ListCustomers(ctx); err != nil {
		return snap, fmt.Errorf("load customers: %w", err)
	}
	if snap.Regions, err = r.ListRegions(ctx); err != nil {
		return snap, fmt.Errorf("load regions: %w", err)
	}
	return snap, nil
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, n int, evtType string) ([]domain.AuditEvent, error) {
	query := `SELECT id,ts,type,COALESCE(entity_kind,'') AS entity_kind,COALESCE(entity_id,'') AS entity_id,payload_json FROM events`
	var args []any
	if evtType != "" {
		query += ` WHERE type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC`
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
