package service

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sis061/pilltime-sub000/internal"
)

var validate = validator.New()

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ValidatePattern enforces the tagged-union shape of a recurrence pattern
// before it is ever stored or evaluated: weekly needs a non-empty weekday set,
// monthly a non-empty day-of-month set, and the zone must resolve.
func ValidatePattern(p internal.RecurrencePattern) error {
	switch p.Type {
	case internal.RecurrenceDaily:
	case internal.RecurrenceWeekly:
		if len(p.DaysOfWeek) == 0 {
			return internal.ValidationError("weekly recurrence requires days_of_week", "days_of_week")
		}
		for _, d := range p.DaysOfWeek {
			if d < 0 || d > 6 {
				return internal.ValidationError("days_of_week entries must be 0..6", "days_of_week")
			}
		}
	case internal.RecurrenceMonthly:
		if len(p.DaysOfMonth) == 0 {
			return internal.ValidationError("monthly recurrence requires days_of_month", "days_of_month")
		}
		for _, d := range p.DaysOfMonth {
			if d < 1 || d > 31 {
				return internal.ValidationError("days_of_month entries must be 1..31", "days_of_month")
			}
		}
	default:
		return internal.ValidationError("recurrence type must be daily, weekly or monthly", "type")
	}
	if p.Timezone == "" {
		return internal.ValidationError("recurrence timezone is required", "timezone")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return internal.ValidationError("recurrence timezone is not a valid IANA zone", "timezone")
	}
	return nil
}

// ValidateTimeOfDay accepts HH:MM on 5-minute increments.
func ValidateTimeOfDay(s string) error {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return internal.ValidationError("time_of_day must be HH:MM", "time_of_day")
	}
	if t.Minute()%5 != 0 {
		return internal.ValidationError("time_of_day must be on a 5-minute increment", "time_of_day")
	}
	return nil
}

// IsDue reports whether civilDate is a due date for the pattern. civilDate
// must already be expressed in the pattern's timezone (any clock time on that
// day works; only the calendar fields are read). A monthly day absent from a
// short month is simply never due that month.
func IsDue(p internal.RecurrencePattern, civilDate time.Time) bool {
	switch p.Type {
	case internal.RecurrenceDaily:
		return true
	case internal.RecurrenceWeekly:
		wd := int(civilDate.Weekday()) // 0=Sunday matches the stored convention
		for _, d := range p.DaysOfWeek {
			if d == wd {
				return true
			}
		}
		return false
	case internal.RecurrenceMonthly:
		dom := civilDate.Day()
		for _, d := range p.DaysOfMonth {
			if d == dom {
				return true
			}
		}
		return false
	}
	return false
}
