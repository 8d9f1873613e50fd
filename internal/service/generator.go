package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

// ScheduleFailure isolates one schedule's generation error inside a batch.
type ScheduleFailure struct {
	ScheduleID string `json:"schedule_id"`
	Message    string `json:"message"`
}

// GenerationResult aggregates a batch of per-schedule materializations.
// Failures never abort sibling schedules.
type GenerationResult struct {
	Created int               `json:"created"`
	Failed  []ScheduleFailure `json:"failed,omitempty"`
}

func (r *GenerationResult) addFailure(scheduleID string, err error) {
	r.Failed = append(r.Failed, ScheduleFailure{ScheduleID: scheduleID, Message: err.Error()})
}

// Err reports the batch as a partial failure when any schedule failed.
func (r *GenerationResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return internal.PartialError("instance generation failed for some schedules")
}

// Materialize walks every civil date in [fromDate, toDate] inclusive in the
// schedule's timezone and upserts a DoseInstance for each due date. Existing
// rows are never touched, so regeneration cannot destroy an instance a user
// already acted on, and calling this twice is a no-op the second time.
func Materialize(ctx context.Context, doses storage.DoseRepository, sched *internal.Schedule, fromDate, toDate string) (int, error) {
	loc, err := time.LoadLocation(sched.Recurrence.Timezone)
	if err != nil {
		return 0, internal.ValidationError("schedule timezone is not a valid IANA zone", "timezone")
	}
	from, err := time.ParseInLocation(DateLayout, fromDate, loc)
	if err != nil {
		return 0, internal.ValidationError("fromDate must be YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(DateLayout, toDate, loc)
	if err != nil {
		return 0, internal.ValidationError("toDate must be YYYY-MM-DD")
	}

	created := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !IsDue(sched.Recurrence, day) {
			continue
		}
		inst := &internal.DoseInstance{
			ID:         uuid.NewString(),
			ScheduleID: sched.ID,
			MedicineID: sched.MedicineID,
			UserID:     sched.UserID,
			Date:       day.Format(DateLayout),
			Time:       sched.TimeOfDay,
			Status:     internal.DoseScheduled,
			Source:     internal.SourceAuto,
			CreatedAt:  time.Now(),
		}
		inserted, err := doses.InsertDoseIfAbsent(ctx, inst)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// MaterializeWindow anchors the forward-looking window to "today" in the
// schedule's own timezone.
func MaterializeWindow(ctx context.Context, doses storage.DoseRepository, sched *internal.Schedule, now time.Time, windowDays int) (int, error) {
	loc, err := time.LoadLocation(sched.Recurrence.Timezone)
	if err != nil {
		return 0, internal.ValidationError("schedule timezone is not a valid IANA zone", "timezone")
	}
	today := now.In(loc)
	from := today.Format(DateLayout)
	to := today.AddDate(0, 0, windowDays).Format(DateLayout)
	return Materialize(ctx, doses, sched, from, to)
}
