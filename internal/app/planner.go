package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coverplan/internal/config"
	"coverplan/internal/coverage"
	"coverplan/internal/csvio"
	"coverplan/internal/domain"
	"coverplan/internal/events"
	"coverplan/internal/metrics"
	"coverplan/internal/repo"
)

// Planner ties the pure coverage engine to storage, audit events and metrics.
// It is the application hub shared by the CLI and the HTTP server.
type Planner struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Eval   coverage.Evaluator
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *zap.SugaredLogger) Planner {
	return Planner{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Eval:   coverage.New(log),
		Now:    time.Now,
	}
}

func (p Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ImportRoster replaces the stored roster with the parsed CSV content.
func (p Planner) ImportRoster(ctx context.Context, r io.Reader) (coverage.Snapshot, error) {
	roster, err := csvio.Parse(r)
	if err != nil {
		return coverage.Snapshot{}, err
	}
	snap := coverage.Snapshot{
		Employees: roster.Employees,
		Customers: roster.Customers,
		Regions:   roster.Regions,
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return coverage.Snapshot{}, err
	}
	defer tx.Rollback()
	if err := p.Repo.ReplaceRoster(ctx, tx, snap); err != nil {
		return coverage.Snapshot{}, err
	}
	if err := p.Events.Append(ctx, tx, "roster.imported", "", "", events.EventPayload{
		"employees": len(snap.Employees),
		"customers": len(snap.Customers),
		"regions":   len(snap.Regions),
	}); err != nil {
		return coverage.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return coverage.Snapshot{}, err
	}
	return snap, nil
}

// ImportLeave stores normalized leave intervals, optionally replacing all
// previously stored ones.
func (p Planner) ImportLeave(ctx context.Context, leaves []domain.LeaveInterval, replace bool) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if replace {
		if err := p.Repo.DeleteLeaveIntervals(ctx, tx); err != nil {
			return err
		}
	}
	if err := p.Repo.InsertLeaveIntervals(ctx, tx, leaves); err != nil {
		return err
	}
	if err := p.Events.Append(ctx, tx, "leave.imported", "", "", events.EventPayload{
		"intervals": len(leaves),
		"replace":   replace,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddEmployee stores one employee, generating an id when missing.
func (p Planner) AddEmployee(ctx context.Context, e domain.Employee) (domain.Employee, error) {
	if e.Name == "" || e.Team == "" {
		return e, fmt.Errorf("employee name and team are required")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return e, p.Repo.InsertEmployee(ctx, e)
}

// AddCustomer stores one customer with its requirements.
func (p Planner) AddCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	if c.Name == "" {
		return c, fmt.Errorf("customer name is required")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return c, p.Repo.InsertCustomer(ctx, c)
}

// AddRegion stores one region with its requirements.
func (p Planner) AddRegion(ctx context.Context, r domain.Region) (domain.Region, error) {
	if r.Name == "" {
		return r, fmt.Errorf("region name is required")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return r, p.Repo.InsertRegion(ctx, r)
}

// Report loads the current snapshot plus the overlapping leave intervals and
// runs the coverage evaluation for the given options.
func (p Planner) Report(ctx context.Context, opts coverage.RunOptions) ([]domain.DayReport, coverage.RunStats, error) {
	if !opts.From.Before(opts.To) {
		return nil, coverage.RunStats{}, fmt.Errorf("report window is empty")
	}
	snap, err := p.Repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, coverage.RunStats{}, err
	}
	leaves, err := p.Repo.ListLeaveIntervals(ctx, opts.From, opts.To)
	if err != nil {
		return nil, coverage.RunStats{}, err
	}
	started := p.now()
	reports, stats := p.Eval.EvaluateRange(snap, leaves, opts)
	metrics.Record(stats, p.now().Sub(started))

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, coverage.RunStats{}, err
	}
	defer tx.Rollback()
	if err := p.Events.Append(ctx, tx, "evaluation.run", "", "", events.EventPayload{
		"from":     opts.From.UTC().Format("2006-01-02"),
		"to":       opts.To.UTC().Format("2006-01-02"),
		"critical": stats.Critical,
		"warning":  stats.Warning,
		"covered":  stats.Covered,
	}); err != nil {
		return nil, coverage.RunStats{}, err
	}
	if err := tx.Commit(); err != nil {
		return nil, coverage.RunStats{}, err
	}
	return reports, stats, nil
}

// DefaultWindow returns the configured evaluation window starting today.
func (p Planner) DefaultWindow() (time.Time, time.Time) {
	days := 30
	if p.Config != nil && p.Config.Window.Days > 0 {
		days = p.Config.Window.Days
	}
	from := coverage.DayOf(p.now())
	return from, from.AddDate(0, 0, days)
}
