package coverage_test

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"coverplan/internal/coverage"
	"coverplan/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func vacation(name string, start, end time.Time) domain.LeaveInterval {
	return domain.LeaveInterval{Kind: domain.LeaveVacation, EmployeeName: name, Start: start, End: end}
}

func supportRoster(n int) []domain.Employee {
	names := []string{"Akshay", "Bob", "Carol", "Dana", "Egon"}
	var out []domain.Employee
	for i := 0; i < n; i++ {
		out = append(out, domain.Employee{ID: names[i], Name: names[i], Team: "support", Country: "pol"})
	}
	return out
}

func TestThresholdBoundaries(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	cust := domain.Customer{ID: "c1", Name: "Heron", Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 2}}}

	cases := []struct {
		onLeave int
		want    domain.Status
	}{
		{0, domain.StatusCovered},
		{1, domain.StatusWarning},
		{2, domain.StatusCritical},
	}
	for _, tc := range cases {
		snap := coverage.Snapshot{Employees: supportRoster(3)}
		var leaves []domain.LeaveInterval
		for i := 0; i < tc.onLeave; i++ {
			leaves = append(leaves, vacation("Vacation: "+snap.Employees[i].Name, testDay, testDay.AddDate(0, 0, 1)))
		}
		res := ev.EvaluateCustomer(cust, testDay, snap, leaves)
		if res.Status != tc.want {
			t.Fatalf("onLeave=%d: got %s, want %s", tc.onLeave, res.Status, tc.want)
		}
	}
}

func TestMonotonicity(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	cust := domain.Customer{ID: "c1", Name: "Heron", Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 2}}}
	snap := coverage.Snapshot{Employees: supportRoster(5)}

	prev := -1
	for onLeave := 0; onLeave <= 5; onLeave++ {
		var leaves []domain.LeaveInterval
		for i := 0; i < onLeave; i++ {
			leaves = append(leaves, vacation(snap.Employees[i].Name, testDay, testDay.AddDate(0, 0, 1)))
		}
		res := ev.EvaluateCustomer(cust, testDay, snap, leaves)
		if prev >= 0 && res.Status.Severity() < prev {
			t.Fatalf("status improved when onLeave grew to %d", onLeave)
		}
		prev = res.Status.Severity()
	}
}

func TestWorstOfAggregation(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	snap := coverage.Snapshot{Employees: []domain.Employee{
		{ID: "a", Name: "Akshay", Team: "support"},
		{ID: "b", Name: "Bob", Team: "support"},
		{ID: "c", Name: "Carol", Team: "support"},
		{ID: "d", Name: "Dana", Team: "dev"},
	}}
	cust := domain.Customer{ID: "c1", Name: "Hawk", Requirements: []domain.Requirement{
		{Teams: []string{"support"}, Min: 1}, // 2 of 3 available after leave: covered
		{Teams: []string{"dev"}, Min: 2},     // 1 available: critical
	}}
	leaves := []domain.LeaveInterval{vacation("Vacation: Carol", testDay, testDay.AddDate(0, 0, 1))}

	res := ev.EvaluateCustomer(cust, testDay, snap, leaves)
	if res.Status != domain.StatusCritical {
		t.Fatalf("want critical, got %s", res.Status)
	}
	detail := strings.Join(res.DetailLines, "\n")
	if !strings.Contains(detail, "support") || !strings.Contains(detail, "dev") {
		t.Fatalf("detail must mention both teams: %q", detail)
	}
	if len(res.Summary) != 1 || !strings.HasPrefix(res.Summary[0], "dev:") {
		t.Fatalf("summary must only include the non-covered team: %v", res.Summary)
	}
}

func TestHalfOpenDateBoundary(t *testing.T) {
	ev := coverage.New(nil)
	emp := domain.Employee{ID: "a", Name: "Akshay", Team: "support"}
	roster := []domain.Employee{emp}
	leaves := []domain.LeaveInterval{vacation("Akshay", day(2024, 3, 1), day(2024, 3, 3))}

	for _, tc := range []struct {
		day  time.Time
		want bool
	}{
		{day(2024, 2, 29), false},
		{day(2024, 3, 1), true},
		{day(2024, 3, 2), true},
		{day(2024, 3, 3), false},
	} {
		if _, got := ev.LeaveReason(emp, tc.day, leaves, roster); got != tc.want {
			t.Fatalf("day %s: on leave = %v, want %v", tc.day.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestRegionCountryFilter(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	snap := coverage.Snapshot{Employees: []domain.Employee{
		{ID: "a", Name: "Akshay", Team: "fenix", Country: "pol"},
		{ID: "b", Name: "Bob", Team: "fenix", Country: "usa"},
	}}
	region := domain.Region{ID: "r1", Name: "Europe", Countries: []string{"pol"},
		Requirements: []domain.Requirement{{Teams: []string{"fenix"}, Min: 1}}}
	cust := domain.Customer{ID: "c1", Name: "Heron",
		Requirements: []domain.Requirement{{Teams: []string{"fenix"}, Min: 1}}}

	// region pool excludes the US employee: 1 of 1 available at min, warning
	regRes := ev.EvaluateRegion(region, testDay, snap, nil)
	if regRes.Status != domain.StatusWarning {
		t.Fatalf("region: want warning with pool of 1, got %s", regRes.Status)
	}
	// customer pool counts both: 2 available above min, covered
	custRes := ev.EvaluateCustomer(cust, testDay, snap, nil)
	if custRes.Status != domain.StatusCovered {
		t.Fatalf("customer: want covered with pool of 2, got %s", custRes.Status)
	}
}

func TestMissingCountryMatchesNothing(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	emp := domain.Employee{ID: "a", Name: "Akshay", Team: "support"} // no country
	roster := []domain.Employee{emp}
	holidays := []domain.LeaveInterval{{
		Kind: domain.LeavePublicHoliday, Countries: []string{"pol"},
		Start: testDay, End: testDay.AddDate(0, 0, 1),
	}}
	if _, on := ev.LeaveReason(emp, testDay, holidays, roster); on {
		t.Fatal("employee without country must not match a public holiday")
	}
	region := domain.Region{ID: "r1", Name: "Europe", Countries: []string{"pol"},
		Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 0}}}
	res := ev.EvaluateRegion(region, testDay, coverage.Snapshot{Employees: roster}, nil)
	// pool is empty, available 0 == min 0
	if res.Status != domain.StatusWarning {
		t.Fatalf("want warning for empty pool at min 0, got %s", res.Status)
	}
}

func TestCompanyHolidayAppliesToEveryone(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 12, 25)
	emp := domain.Employee{ID: "a", Name: "Akshay", Team: "support", Country: "qar"}
	leaves := []domain.LeaveInterval{{
		Kind:  domain.LeaveCompanyHoliday,
		Start: testDay, End: testDay.AddDate(0, 0, 1),
	}}
	kind, on := ev.LeaveReason(emp, testDay, leaves, []domain.Employee{emp})
	if !on || kind != domain.LeaveCompanyHoliday {
		t.Fatalf("want company holiday match, got %s on=%v", kind, on)
	}
}

func TestVacationReportedOverHolidayNoDoubleSubtract(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	snap := coverage.Snapshot{Employees: supportRoster(2)}
	leaves := []domain.LeaveInterval{
		{Kind: domain.LeaveCompanyHoliday, Start: testDay, End: testDay.AddDate(0, 0, 1)},
		vacation("Vacation: Akshay", testDay, testDay.AddDate(0, 0, 1)),
	}
	kind, on := ev.LeaveReason(snap.Employees[0], testDay, leaves, snap.Employees)
	if !on || kind != domain.LeaveVacation {
		t.Fatalf("vacation must win the reported reason, got %s", kind)
	}
	// both employees are out (one vacation + holiday, one holiday only) but
	// each is subtracted exactly once
	cust := domain.Customer{ID: "c1", Name: "Heron",
		Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 1}}}
	res := ev.EvaluateCustomer(cust, testDay, snap, leaves)
	if res.Status != domain.StatusCritical {
		t.Fatalf("want critical with 0/2 available, got %s", res.Status)
	}
	if len(res.Summary) != 1 || res.Summary[0] != "support: 0/1" {
		t.Fatalf("unexpected summary: %v", res.Summary)
	}
}

func TestFuzzyMatchAmbiguityDiagnostic(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core).Sugar()
	ev := coverage.New(log)
	testDay := day(2024, 3, 5)

	snap := coverage.Snapshot{
		Employees: []domain.Employee{
			{ID: "a", Name: "Ana Lopez", Team: "support"},
			{ID: "b", Name: "Ana Lopez Garcia", Team: "support"},
		},
		Customers: []domain.Customer{{ID: "c1", Name: "Heron",
			Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 1}}}},
	}
	leaves := []domain.LeaveInterval{vacation("Vacation: Ana Lopez Garcia", testDay, testDay.AddDate(0, 0, 1))}

	// both names are substrings of the entry title, so both match
	reports, stats := ev.EvaluateRange(snap, leaves, coverage.RunOptions{
		From: testDay, To: testDay.AddDate(0, 0, 1), IncludeCovered: true,
	})
	if len(reports) != 1 {
		t.Fatalf("want 1 report, got %d", len(reports))
	}
	if reports[0].Status != domain.StatusCritical {
		t.Fatalf("both employees match the entry, want critical, got %s", reports[0].Status)
	}
	if stats.Ambiguities == 0 {
		t.Fatal("ambiguity diagnostic did not fire")
	}
	if logs.FilterMessage("vacation entry matches multiple employees").Len() == 0 {
		t.Fatal("expected ambiguity warning in logs")
	}
}

func TestHeronSupportScenario(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	snap := coverage.Snapshot{Employees: supportRoster(2)}
	cust := domain.Customer{ID: "c1", Name: "Heron",
		Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 1}}}

	// one of two support employees on vacation: exactly at min, warning
	leaves := []domain.LeaveInterval{vacation("Vacations Akshay", testDay, testDay.AddDate(0, 0, 1))}
	res := ev.EvaluateCustomer(cust, testDay, snap, leaves)
	if res.Status != domain.StatusWarning {
		t.Fatalf("want warning, got %s", res.Status)
	}
	if len(res.Summary) != 1 || res.Summary[0] != "support: 1/1" {
		t.Fatalf("unexpected summary: %v", res.Summary)
	}

	// no leave at all: covered, no detail
	res = ev.EvaluateCustomer(cust, testDay, snap, nil)
	if res.Status != domain.StatusCovered {
		t.Fatalf("want covered, got %s", res.Status)
	}
	if len(res.DetailLines) != 0 || len(res.Summary) != 0 {
		t.Fatalf("covered team with no leave must yield no detail: %v %v", res.DetailLines, res.Summary)
	}
}

func TestEntityWithoutRequirements(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	res := ev.EvaluateCustomer(domain.Customer{ID: "c1", Name: "Empty"}, testDay, coverage.Snapshot{}, nil)
	if res.Status != domain.StatusCovered {
		t.Fatalf("want covered, got %s", res.Status)
	}
	if len(res.DetailLines) != 1 || res.DetailLines[0] != "no requirements defined" {
		t.Fatalf("unexpected detail: %v", res.DetailLines)
	}
}

func TestCoveredSuppressionPolicy(t *testing.T) {
	ev := coverage.New(nil)
	from, to := day(2024, 3, 5), day(2024, 3, 7)
	snap := coverage.Snapshot{
		Employees: supportRoster(3),
		Customers: []domain.Customer{{ID: "c1", Name: "Heron",
			Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 1}}}},
	}

	suppressed, stats := ev.EvaluateRange(snap, nil, coverage.RunOptions{From: from, To: to})
	if len(suppressed) != 0 {
		t.Fatalf("covered results must be suppressed by default, got %d", len(suppressed))
	}
	if stats.Covered != 2 || stats.Days != 2 {
		t.Fatalf("stats must count suppressed results: %+v", stats)
	}

	emitted, _ := ev.EvaluateRange(snap, nil, coverage.RunOptions{From: from, To: to, IncludeCovered: true})
	if len(emitted) != 2 {
		t.Fatalf("want one result per day with IncludeCovered, got %d", len(emitted))
	}
}

func TestReportOrdering(t *testing.T) {
	ev := coverage.New(nil)
	testDay := day(2024, 3, 5)
	snap := coverage.Snapshot{
		Employees: []domain.Employee{{ID: "a", Name: "Akshay", Team: "support", Country: "pol"}},
		Customers: []domain.Customer{
			{ID: "c1", Name: "Zebra", Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 2}}},  // critical
			{ID: "c2", Name: "Aster", Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 1}}}, // warning
		},
		Regions: []domain.Region{
			{ID: "r1", Name: "Europe", Countries: []string{"pol"},
				Requirements: []domain.Requirement{{Teams: []string{"support"}, Min: 2}}}, // critical
		},
	}

	reports, _ := ev.EvaluateRange(snap, nil, coverage.RunOptions{
		From: testDay, To: testDay.AddDate(0, 0, 1), RegionsFirst: true,
	})
	if len(reports) != 3 {
		t.Fatalf("want 3 reports, got %d", len(reports))
	}
	got := []string{reports[0].EntityName, reports[1].EntityName, reports[2].EntityName}
	want := []string{"Europe", "Zebra", "Aster"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}

	reports, _ = ev.EvaluateRange(snap, nil, coverage.RunOptions{
		From: testDay, To: testDay.AddDate(0, 0, 1), RegionsFirst: false,
	})
	if reports[0].EntityName != "Zebra" || reports[1].EntityName != "Europe" {
		t.Fatalf("customers-first order broken: %s, %s", reports[0].EntityName, reports[1].EntityName)
	}
}

func TestInjectableMatcher(t *testing.T) {
	ev := coverage.New(nil)
	ev.Matcher = exactMatcher{}
	testDay := day(2024, 3, 5)
	emp := domain.Employee{ID: "a", Name: "Akshay", Team: "support"}
	roster := []domain.Employee{emp}

	fuzzyOnly := []domain.LeaveInterval{vacation("Vacation: Akshay", testDay, testDay.AddDate(0, 0, 1))}
	if _, on := ev.LeaveReason(emp, testDay, fuzzyOnly, roster); on {
		t.Fatal("exact matcher must reject the decorated title")
	}
	exact := []domain.LeaveInterval{vacation("Akshay", testDay, testDay.AddDate(0, 0, 1))}
	if _, on := ev.LeaveReason(emp, testDay, exact, roster); !on {
		t.Fatal("exact matcher must accept the exact name")
	}
}

type exactMatcher struct{}

func (exactMatcher) Match(entryName, employeeName string) bool {
	return strings.EqualFold(entryName, employeeName)
}
