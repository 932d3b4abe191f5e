package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"coverplan/internal/app"
	"coverplan/internal/config"
	"coverplan/internal/coverage"
	"coverplan/internal/db"
	"coverplan/internal/domain"
	"coverplan/internal/migrate"
)

type testEnv struct {
	Planner app.Planner
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	p := app.New(conn, config.Default(), zap.NewNop().Sugar())
	p.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Planner: p, Ctx: context.Background()}
}

const testRoster = `type,name,country,required_employee_per_team,required_team
customer,Heron,AUH,1,Support Team
customer,Heron,AUH,1,Dev Team
region,Europe,"POL, SPA",1,Dev Team
employee,Akshay Kumar,Support Team,POL,
employee,Bela Novak,Dev Team,POL,
employee,Carmen Ruiz,Dev Team,SPA,
`

func TestImportRosterRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	snap, err := env.Planner.ImportRoster(env.Ctx, strings.NewReader(testRoster))
	if err != nil {
		t.Fatalf("import roster: %v", err)
	}
	if len(snap.Employees) != 3 || len(snap.Customers) != 1 || len(snap.Regions) != 1 {
		t.Fatalf("unexpected snapshot sizes: %d employees, %d customers, %d regions",
			len(snap.Employees), len(snap.Customers), len(snap.Regions))
	}
	stored, err := env.Planner.Repo.LoadSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(stored.Customers) != 1 || len(stored.Customers[0].Requirements) != 2 {
		t.Fatalf("customer requirements not aggregated: %+v", stored.Customers)
	}
	if len(stored.Regions[0].Countries) != 2 {
		t.Fatalf("region countries lost: %+v", stored.Regions[0])
	}
}

func TestImportRosterReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Planner.ImportRoster(env.Ctx, strings.NewReader(testRoster)); err != nil {
		t.Fatalf("first import: %v", err)
	}
	second := `type,name,country,required_employee_per_team,required_team
employee,Dana Hill,Dev Team,USA,
`
	if _, err := env.Planner.ImportRoster(env.Ctx, strings.NewReader(second)); err != nil {
		t.Fatalf("second import: %v", err)
	}
	stored, err := env.Planner.Repo.LoadSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(stored.Employees) != 1 || stored.Employees[0].Name != "Dana Hill" {
		t.Fatalf("roster not replaced: %+v", stored.Employees)
	}
	if len(stored.Customers) != 0 || len(stored.Regions) != 0 {
		t.Fatalf("old entities survived the replace")
	}
}

func TestReportPersistedLeave(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Planner.ImportRoster(env.Ctx, strings.NewReader(testRoster)); err != nil {
		t.Fatalf("import roster: %v", err)
	}
	leaves := []domain.LeaveInterval{{
		Kind:         domain.LeaveVacation,
		Start:        time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		EmployeeName: "Akshay Kumar",
	}}
	if err := env.Planner.ImportLeave(env.Ctx, leaves, false); err != nil {
		t.Fatalf("import leave: %v", err)
	}
	reports, stats, err := env.Planner.Report(env.Ctx, coverage.RunOptions{
		From: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if stats.Days != 2 {
		t.Fatalf("expected 2 days, got %d", stats.Days)
	}
	// Heron loses its only support member on both days
	criticalDays := 0
	for _, r := range reports {
		if r.EntityName == "Heron" && r.Status == domain.StatusCritical {
			criticalDays++
		}
	}
	if criticalDays != 2 {
		t.Fatalf("expected Heron critical on 2 days, got %d (reports: %+v)", criticalDays, reports)
	}
}

func TestImportLeaveReplace(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Planner.ImportRoster(env.Ctx, strings.NewReader(testRoster)); err != nil {
		t.Fatalf("import roster: %v", err)
	}
	first := []domain.LeaveInterval{{
		Kind:  domain.LeaveCompanyHoliday,
		Start: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}}
	if err := env.Planner.ImportLeave(env.Ctx, first, false); err != nil {
		t.Fatalf("first import: %v", err)
	}
	second := []domain.LeaveInterval{{
		Kind:  domain.LeaveCompanyHoliday,
		Start: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
	}}
	if err := env.Planner.ImportLeave(env.Ctx, second, true); err != nil {
		t.Fatalf("replace import: %v", err)
	}
	stored, err := env.Planner.Repo.ListLeaveIntervals(env.Ctx,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list leaves: %v", err)
	}
	if len(stored) != 1 || !stored[0].Start.Equal(second[0].Start) {
		t.Fatalf("replace did not drop old intervals: %+v", stored)
	}
}

func TestReportRejectsEmptyWindow(t *testing.T) {
	env := newTestEnv(t)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	if _, _, err := env.Planner.Report(env.Ctx, coverage.RunOptions{From: day, To: day}); err == nil {
		t.Fatalf("expected error for empty window")
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Planner.ImportRoster(env.Ctx, strings.NewReader(testRoster)); err != nil {
		t.Fatalf("import roster: %v", err)
	}
	if _, _, err := env.Planner.Report(env.Ctx, coverage.RunOptions{
		From: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("report: %v", err)
	}
	events, err := env.Planner.Repo.LatestEvents(env.Ctx, 10, "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// newest first
	if events[0].Type != "evaluation.run" || events[1].Type != "roster.imported" {
		t.Fatalf("unexpected event order: %s, %s", events[0].Type, events[1].Type)
	}
}
