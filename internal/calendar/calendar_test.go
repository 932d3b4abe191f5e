package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coverplan/internal/calendar"
	"coverplan/internal/domain"
)

func TestNormalizeVacations(t *testing.T) {
	events := []calendar.Event{
		{Summary: "Vacation: John Smith", Start: calendar.EventTime{Date: "2024-03-01"}, End: calendar.EventTime{Date: "2024-03-03"}},
		{Summary: "Jane Doe", Start: calendar.EventTime{Date: "2024-03-05"}},
		{Summary: "OOO: Bob", Start: calendar.EventTime{DateTime: "2024-03-10T09:30:00Z"}, End: calendar.EventTime{DateTime: "2024-03-12T17:00:00Z"}},
	}

	leaves, err := calendar.NormalizeVacations(events)
	assert.NoError(t, err)
	assert.Len(t, leaves, 3)

	assert.Equal(t, domain.LeaveVacation, leaves[0].Kind)
	assert.Equal(t, "John Smith", leaves[0].EmployeeName)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), leaves[0].Start)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), leaves[0].End)

	// all-day single event gets end = start + 1 day
	assert.Equal(t, "Jane Doe", leaves[1].EmployeeName)
	assert.Equal(t, leaves[1].Start.AddDate(0, 0, 1), leaves[1].End)

	// timed events collapse to day granularity
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), leaves[2].Start)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), leaves[2].End)
}

func TestNormalizeHolidays(t *testing.T) {
	events := []calendar.Event{
		{Summary: "Constitution Day", Start: calendar.EventTime{Date: "2024-05-03"}},
	}

	public, err := calendar.NormalizeHolidays(events, []string{"POL"})
	assert.NoError(t, err)
	assert.Equal(t, domain.LeavePublicHoliday, public[0].Kind)
	assert.Equal(t, []string{"pol"}, public[0].Countries)

	company, err := calendar.NormalizeHolidays(events, nil)
	assert.NoError(t, err)
	assert.Equal(t, domain.LeaveCompanyHoliday, company[0].Kind)
	assert.Empty(t, company[0].Countries)
}

func TestNormalizeBadDate(t *testing.T) {
	_, err := calendar.NormalizeVacations([]calendar.Event{
		{Summary: "Broken", Start: calendar.EventTime{Date: "03/01/2024"}},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
}

func TestHolidayCalendarID(t *testing.T) {
	id, ok := calendar.HolidayCalendarID("AUH", nil)
	assert.True(t, ok)
	assert.Equal(t, "en.ae#holiday@group.v.calendar.google.com", id)

	id, ok = calendar.HolidayCalendarID("auh", map[string]string{"auh": "uae"})
	assert.True(t, ok)
	assert.Equal(t, "en.uae#holiday@group.v.calendar.google.com", id)

	_, ok = calendar.HolidayCalendarID("zzz", nil)
	assert.False(t, ok)
}
