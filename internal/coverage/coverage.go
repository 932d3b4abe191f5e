package coverage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"coverplan/internal/domain"
)

// Snapshot is the immutable roster the engine evaluates against. The engine
// only reads it and never retains references across calls, so a snapshot may
// be shared between concurrent evaluations.
type Snapshot struct {
	Employees []domain.Employee
	Customers []domain.Customer
	Regions   []domain.Region
}

// Evaluator computes per-entity, per-day coverage from a roster snapshot and a
// leave-interval list. It is a pure computation; the zap logger is only used
// for the non-fatal ambiguous-name diagnostic.
type Evaluator struct {
	Matcher NameMatcher
	Log     *zap.SugaredLogger
}

// New returns an Evaluator with the fuzzy substring matcher.
func New(log *zap.SugaredLogger) Evaluator {
	return Evaluator{Matcher: SubstringMatcher{}, Log: log}
}

func (ev Evaluator) matcher() NameMatcher {
	if ev.Matcher != nil {
		return ev.Matcher
	}
	return SubstringMatcher{}
}

func (ev Evaluator) log() *zap.SugaredLogger {
	if ev.Log != nil {
		return ev.Log
	}
	return zap.NewNop().Sugar()
}

// RunOptions controls one EvaluateRange call. Days in [From, To) are
// evaluated. IncludeCovered resolves the covered-suppression policy per call;
// RegionsFirst picks the secondary sort order between entity kinds.
type RunOptions struct {
	From           time.Time
	To             time.Time
	IncludeCovered bool
	RegionsFirst   bool
}

// RunStats summarizes one EvaluateRange call. Entity counts are taken before
// covered suppression; Ambiguities counts distinct vacation entries whose name
// matched more than one roster employee.
type RunStats struct {
	Days        int
	Critical    int
	Warning     int
	Covered     int
	Ambiguities int
}

type runState struct {
	stats         RunStats
	seenAmbiguous map[string]bool
}

// DayOf truncates a time to day granularity in UTC.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LeaveReason reports whether the employee is on leave on the given day, and
// why. Vacation is reported preferentially over holidays, but any match counts
// as exactly one unit of unavailability regardless of how many kinds overlap.
// The roster is needed to detect ambiguous vacation name matches, which are
// surfaced as a warning without affecting the result.
func (ev Evaluator) LeaveReason(emp domain.Employee, day time.Time, leaves []domain.LeaveInterval, roster []domain.Employee) (domain.LeaveKind, bool) {
	return ev.leaveReason(emp, day, leaves, roster, nil)
}

func (ev Evaluator) leaveReason(emp domain.Employee, day time.Time, leaves []domain.LeaveInterval, roster []domain.Employee, st *runState) (domain.LeaveKind, bool) {
	var reason domain.LeaveKind
	found := false
	for _, l := range leaves {
		if !l.Covers(day) {
			continue
		}
		switch l.Kind {
		case domain.LeaveVacation:
			if !ev.matcher().Match(l.EmployeeName, emp.Name) {
				continue
			}
			ev.checkAmbiguity(l, roster, st)
			return domain.LeaveVacation, true
		case domain.LeaveCompanyHoliday:
			if !found {
				reason, found = domain.LeaveCompanyHoliday, true
			}
		case domain.LeavePublicHoliday:
			if emp.Country == "" {
				continue
			}
			if !found && containsFold(l.Countries, emp.Country) {
				reason, found = domain.LeavePublicHoliday, true
			}
		}
	}
	return reason, found
}

// checkAmbiguity fires the diagnostic when a vacation entry's fuzzy match
// could refer to more than one roster employee. Evaluation proceeds with the
// employee under test either way.
func (ev Evaluator) checkAmbiguity(l domain.LeaveInterval, roster []domain.Employee, st *runState) {
	matches := 0
	for _, emp := range roster {
		if ev.matcher().Match(l.EmployeeName, emp.Name) {
			matches++
		}
	}
	if matches <= 1 {
		return
	}
	if st != nil {
		if st.seenAmbiguous[l.EmployeeName] {
			return
		}
		st.seenAmbiguous[l.EmployeeName] = true
		st.stats.Ambiguities++
	}
	ev.log().Warnw("vacation entry matches multiple employees", "entry", l.EmployeeName, "matches", matches)
}

// evaluateTeam computes availability for one team of a requirement on one day.
// countries, when non-empty, restricts the pool to employees whose country is
// listed (a region pool). The pool is recomputed per call on purpose; two
// requirements naming the same team evaluate independently.
func (ev Evaluator) evaluateTeam(team string, min int, day time.Time, snap Snapshot, countries []string, leaves []domain.LeaveInterval, st *runState) domain.TeamStatus {
	ts := domain.TeamStatus{Team: team, Min: min}
	for _, emp := range snap.Employees {
		if emp.Team != team {
			continue
		}
		if len(countries) > 0 && !containsFold(countries, emp.Country) {
			continue
		}
		ts.Total++
		if _, on := ev.leaveReason(emp, day, leaves, snap.Employees, st); on {
			ts.OnLeave = append(ts.OnLeave, emp.Name)
		}
	}
	ts.Available = ts.Total - len(ts.OnLeave)
	switch {
	case ts.Available < min:
		ts.Status = domain.StatusCritical
	case ts.Available == min:
		// at the minimum means no slack, already a warning
		ts.Status = domain.StatusWarning
	default:
		ts.Status = domain.StatusCovered
	}
	return ts
}

// EvaluateCustomer aggregates all requirements of one customer for one day.
func (ev Evaluator) EvaluateCustomer(c domain.Customer, day time.Time, snap Snapshot, leaves []domain.LeaveInterval) domain.CoverageResult {
	return ev.aggregate(c.Requirements, nil, day, snap, leaves, nil)
}

// EvaluateRegion aggregates all requirements of one region for one day,
// restricting every pool to the region's countries.
func (ev Evaluator) EvaluateRegion(r domain.Region, day time.Time, snap Snapshot, leaves []domain.LeaveInterval) domain.CoverageResult {
	return ev.aggregate(r.Requirements, r.Countries, day, snap, leaves, nil)
}

func (ev Evaluator) aggregate(reqs []domain.Requirement, countries []string, day time.Time, snap Snapshot, leaves []domain.LeaveInterval, st *runState) domain.CoverageResult {
	if len(reqs) == 0 {
		return domain.CoverageResult{
			Status:      domain.StatusCovered,
			DetailLines: []string{"no requirements defined"},
		}
	}
	res := domain.CoverageResult{Status: domain.StatusCovered}
	for _, req := range reqs {
		// each team in the requirement is evaluated independently against
		// the same minimum
		for _, team := range req.Teams {
			ts := ev.evaluateTeam(team, req.Min, day, snap, countries, leaves, st)
			res.Status = res.Status.Worse(ts.Status)
			if ts.Status != domain.StatusCovered || len(ts.OnLeave) > 0 {
				res.DetailLines = append(res.DetailLines, teamDetail(ts))
				if len(ts.OnLeave) > 0 {
					res.DetailLines = append(res.DetailLines, fmt.Sprintf("%s on leave: %s", ts.Team, strings.Join(ts.OnLeave, ", ")))
				}
			}
			if ts.Status != domain.StatusCovered {
				res.Summary = append(res.Summary, fmt.Sprintf("%s: %d/%d", ts.Team, ts.Available, ts.Min))
			}
		}
	}
	return res
}

func teamDetail(ts domain.TeamStatus) string {
	return fmt.Sprintf("%s: %d/%d available, min %d (%s)", ts.Team, ts.Available, ts.Total, ts.Min, statusLabel(ts.Status))
}

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusCritical:
		return "Critical"
	case domain.StatusWarning:
		return "Warning"
	default:
		return "OK"
	}
}

// EvaluateRange runs the full evaluation for every day in [From, To) and every
// customer and region in the snapshot. Results are ordered by severity
// (critical first), then entity kind, then entity name, then day. Covered
// results are only emitted when IncludeCovered is set.
//
// The call is read-only over its inputs; concurrent calls over the same
// snapshot with different ranges are safe.
func (ev Evaluator) EvaluateRange(snap Snapshot, leaves []domain.LeaveInterval, opts RunOptions) ([]domain.DayReport, RunStats) {
	st := &runState{seenAmbiguous: map[string]bool{}}
	from, to := DayOf(opts.From), DayOf(opts.To)
	var out []domain.DayReport
	emit := func(kind domain.EntityKind, id, name string, day time.Time, res domain.CoverageResult) {
		switch res.Status {
		case domain.StatusCritical:
			st.stats.Critical++
		case domain.StatusWarning:
			st.stats.Warning++
		default:
			st.stats.Covered++
			if !opts.IncludeCovered {
				return
			}
		}
		out = append(out, domain.DayReport{
			EntityKind:     kind,
			EntityID:       id,
			EntityName:     name,
			Day:            day,
			CoverageResult: res,
		})
	}
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		st.stats.Days++
		for _, c := range snap.Customers {
			emit(domain.EntityCustomer, c.ID, c.Name, day, ev.aggregate(c.Requirements, nil, day, snap, leaves, st))
		}
		for _, r := range snap.Regions {
			emit(domain.EntityRegion, r.ID, r.Name, day, ev.aggregate(r.Requirements, r.Countries, day, snap, leaves, st))
		}
	}
	sortReports(out, opts.RegionsFirst)
	return out, st.stats
}

func sortReports(reports []domain.DayReport, regionsFirst bool) {
	kindRank := func(k domain.EntityKind) int {
		if (k == domain.EntityRegion) == regionsFirst {
			return 0
		}
		return 1
	}
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if a.Status.Severity() != b.Status.Severity() {
			return a.Status.Severity() > b.Status.Severity()
		}
		if kindRank(a.EntityKind) != kindRank(b.EntityKind) {
			return kindRank(a.EntityKind) < kindRank(b.EntityKind)
		}
		if a.EntityName != b.EntityName {
			return a.EntityName < b.EntityName
		}
		return a.Day.Before(b.Day)
	})
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
