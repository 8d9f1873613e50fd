package service

import (
	"time"

	"github.com/sis061/pilltime-sub000/internal"
)

// GracePeriod is how long after the due moment a scheduled dose stays
// actionable before it counts as missed.
const GracePeriod = 30 * time.Minute

// DueAt resolves an instance's civil date and time-of-day to a wall-clock
// moment in the given zone.
func DueAt(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+timeOfDay, loc)
	if err != nil {
		return time.Time{}, internal.ValidationError("malformed dose date or time")
	}
	return t, nil
}

// Deadline is the moment a still-scheduled instance becomes missed.
func Deadline(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	due, err := DueAt(date, timeOfDay, loc)
	if err != nil {
		return time.Time{}, err
	}
	return due.Add(GracePeriod), nil
}

// EffectiveStatus applies the lazy missed rule: a row still carrying
// "scheduled" past its deadline reads as missed even if no writer has
// promoted it yet. Every reader of dose instances must go through this.
// Rows whose last transition was manual are exempt, which is what keeps a
// reversed missed instance actionable instead of instantly missed again.
func EffectiveStatus(d internal.DoseInstance, loc *time.Location, now time.Time) internal.DoseStatus {
	if d.Status != internal.DoseScheduled || d.Source != internal.SourceAuto {
		return d.Status
	}
	deadline, err := Deadline(d.Date, d.Time, loc)
	if err != nil {
		return d.Status
	}
	if now.After(deadline) {
		return internal.DoseMissed
	}
	return internal.DoseScheduled
}

// CanTransition encodes the legal user-driven moves of the status machine.
// taken/skipped require an actionable row (scheduled or missed); moving back
// to scheduled is the reversal and is always legal from a checked state.
func CanTransition(from, to internal.DoseStatus) bool {
	switch to {
	case internal.DoseTaken, internal.DoseSkipped:
		return from == internal.DoseScheduled || from == internal.DoseMissed
	case internal.DoseScheduled:
		return from == internal.DoseTaken || from == internal.DoseSkipped || from == internal.DoseMissed
	}
	return false
}

// ApplyTransition mutates the instance in place for a user-driven transition.
// Reversal clears CheckedAt; everything else stamps it.
func ApplyTransition(d *internal.DoseInstance, to internal.DoseStatus, checkedAt time.Time) error {
	if !CanTransition(d.Status, to) {
		return internal.ValidationError("illegal status transition from " + string(d.Status) + " to " + string(to))
	}
	d.Status = to
	d.Source = internal.SourceManual
	if to == internal.DoseScheduled {
		d.CheckedAt = nil
	} else {
		t := checkedAt
		d.CheckedAt = &t
	}
	return nil
}

// PromoteMissed is the eager variant applied by the dispatch scan. Callers
// only invoke it for rows still raw-scheduled with an automatic source whose
// deadline fell inside the current reminder window, so a reversal never gets
// re-promoted.
func PromoteMissed(d *internal.DoseInstance) {
	d.Status = internal.DoseMissed
	d.Source = internal.SourceAuto
}
