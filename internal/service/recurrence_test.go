package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sis061/pilltime-sub000/internal"
)

func TestValidatePattern(t *testing.T) {
	assert.NoError(t, ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceDaily, Timezone: "UTC",
	}))
	assert.NoError(t, ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceWeekly, DaysOfWeek: []int{1, 3}, Timezone: "Asia/Seoul",
	}))
	assert.NoError(t, ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceMonthly, DaysOfMonth: []int{1, 15, 31}, Timezone: "UTC",
	}))

	// Weekly with an empty day set is rejected before any write.
	err := ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceWeekly, Timezone: "UTC",
	})
	assert.Error(t, err)
	assert.Equal(t, internal.KindValidation, internal.AsAppError(err).Kind)

	assert.Error(t, ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceMonthly, Timezone: "UTC",
	}))
	assert.Error(t, ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceWeekly, DaysOfWeek: []int{7}, Timezone: "UTC",
	}))
	assert.Error(t, ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceMonthly, DaysOfMonth: []int{0}, Timezone: "UTC",
	}))
	assert.Error(t, ValidatePattern(internal.RecurrencePattern{
		Type: internal.RecurrenceDaily, Timezone: "Not/AZone",
	}))
	assert.Error(t, ValidatePattern(internal.RecurrencePattern{
		Type: "yearly", Timezone: "UTC",
	}))
}

func TestValidateTimeOfDay(t *testing.T) {
	assert.NoError(t, ValidateTimeOfDay("08:00"))
	assert.NoError(t, ValidateTimeOfDay("23:55"))
	assert.Error(t, ValidateTimeOfDay("8am"))
	assert.Error(t, ValidateTimeOfDay("08:03"))
	assert.Error(t, ValidateTimeOfDay("24:00"))
}

func TestIsDueDaily(t *testing.T) {
	p := internal.RecurrencePattern{Type: internal.RecurrenceDaily, Timezone: "UTC"}
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		assert.True(t, IsDue(p, day.AddDate(0, 0, i)))
	}
}

func TestIsDueWeekly(t *testing.T) {
	// Monday and Wednesday over a 60-day probe range.
	p := internal.RecurrencePattern{
		Type: internal.RecurrenceWeekly, DaysOfWeek: []int{1, 3}, Timezone: "UTC",
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		day := start.AddDate(0, 0, i)
		want := day.Weekday() == time.Monday || day.Weekday() == time.Wednesday
		assert.Equal(t, want, IsDue(p, day), day.Format(DateLayout))
	}
}

func TestIsDueMonthlyShortMonth(t *testing.T) {
	// Day 30 configured: never due in February, due in January and March.
	p := internal.RecurrencePattern{
		Type: internal.RecurrenceMonthly, DaysOfMonth: []int{30}, Timezone: "UTC",
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	due := []string{}
	for i := 0; i < 90; i++ {
		day := start.AddDate(0, 0, i)
		if IsDue(p, day) {
			due = append(due, day.Format(DateLayout))
		}
	}
	assert.Equal(t, []string{"2025-01-30", "2025-03-30"}, due)
}
