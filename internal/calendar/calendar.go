// Package calendar turns already-fetched calendar events into typed leave
// intervals. It never talks to a calendar service; fetching and OAuth belong
// to whoever produced the events.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"coverplan/internal/domain"
)

// Event is the relevant subset of a fetched calendar event. All-day events
// carry Date; timed events carry DateTime.
type Event struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

type EventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
}

// NormalizeVacations maps personal-calendar events to vacation intervals. The
// employee name is taken from the part after the first colon in the summary
// ("Vacation: John Smith"), or the whole summary when there is no colon.
func NormalizeVacations(events []Event) ([]domain.LeaveInterval, error) {
	var out []domain.LeaveInterval
	for _, ev := range events {
		start, end, err := eventRange(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.LeaveInterval{
			Kind:         domain.LeaveVacation,
			Start:        start,
			End:          end,
			EmployeeName: employeeName(ev.Summary),
		})
	}
	return out, nil
}

// NormalizeHolidays maps holiday-calendar events to holiday intervals. With a
// non-empty country list the events become public holidays applicable to those
// countries; with an empty list they are company holidays applying to everyone.
func NormalizeHolidays(events []Event, countries []string) ([]domain.LeaveInterval, error) {
	kind := domain.LeaveCompanyHoliday
	var lowered []string
	if len(countries) > 0 {
		kind = domain.LeavePublicHoliday
		for _, c := range countries {
			lowered = append(lowered, strings.ToLower(c))
		}
	}
	var out []domain.LeaveInterval
	for _, ev := range events {
		start, end, err := eventRange(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.LeaveInterval{
			Kind:      kind,
			Start:     start,
			End:       end,
			Countries: lowered,
		})
	}
	return out, nil
}

func employeeName(summary string) string {
	if idx := strings.Index(summary, ":"); idx >= 0 {
		return strings.TrimSpace(summary[idx+1:])
	}
	return strings.TrimSpace(summary)
}

// eventRange resolves an event to a half-open day range. A single all-day
// event without an end gets end = start + 1 day.
func eventRange(ev Event) (time.Time, time.Time, error) {
	start, err := parseEventTime(ev.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("event %q: start: %w", ev.Summary, err)
	}
	if ev.End.Date == "" && ev.End.DateTime == "" {
		return start, start.AddDate(0, 0, 1), nil
	}
	end, err := parseEventTime(ev.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("event %q: end: %w", ev.Summary, err)
	}
	if !start.Before(end) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func parseEventTime(et EventTime) (time.Time, error) {
	if et.Date != "" {
		t, err := time.Parse("2006-01-02", et.Date)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	if et.DateTime != "" {
		t, err := time.Parse(time.RFC3339, et.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("no date or dateTime")
}

// DefaultCountryCodes maps roster country codes to the codes Google's public
// holiday calendars use.
var DefaultCountryCodes = map[string]string{
	"usa": "usa",
	"pol": "polish",
	"auh": "ae",
	"qar": "qatari",
	"bru": "belgian",
	"spa": "spain",
}

// HolidayCalendarID returns the holiday calendar id for a roster country code,
// using overrides when the code is present there, then DefaultCountryCodes.
func HolidayCalendarID(code string, overrides map[string]string) (string, bool) {
	lowered := strings.ToLower(code)
	mapped, ok := overrides[lowered]
	if !ok {
		mapped, ok = DefaultCountryCodes[lowered]
	}
	if !ok {
		return "", false
	}
	return fmt.Sprintf("en.%s#holiday@group.v.calendar.google.com", mapped), true
}
