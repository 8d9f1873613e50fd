package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/notify"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

const (
	// OnTimeWindow matches the polling cadence: a dose whose due moment
	// falls inside [now, now+OnTimeWindow) gets its on-time notification.
	OnTimeWindow = time.Minute
	// ReminderLookback bounds the deadline scan: deadlines inside
	// (now-ReminderLookback, now] are promoted and reminded.
	ReminderLookback = 90 * time.Second
)

// DispatchResult summarizes one polling cycle. Individual target failures
// are counted, never fatal.
type DispatchResult struct {
	OnTime     int `json:"on_time"`
	Reminders  int `json:"reminders"`
	Promoted   int `json:"promoted"`
	SendErrors int `json:"send_errors"`
}

// Dispatcher selects which dose instances get an on-time or reminder
// notification in the current polling window, promotes overdue rows to
// missed, and guarantees at most one dispatch per (instance, kind) through
// the dispatch log.
type Dispatcher struct {
	store     storage.Store
	transport notify.Transport
	cache     *IndicatorCache
	logger    internal.Logger
}

func NewDispatcher(store storage.Store, transport notify.Transport, cache *IndicatorCache, logger internal.Logger) *Dispatcher {
	return &Dispatcher{store: store, transport: transport, cache: cache, logger: logger}
}

// Scan runs one polling cycle at the given instant. It is safe to run
// concurrently with user-driven transitions and with an overlapping scan;
// the dispatch log absorbs the races into no-ops.
func (d *Dispatcher) Scan(ctx context.Context, now time.Time) DispatchResult {
	var res DispatchResult

	// Civil dates in any zone near "now" fall inside this band.
	from := now.UTC().AddDate(0, 0, -2).Format(DateLayout)
	to := now.UTC().AddDate(0, 0, 1).Format(DateLayout)
	details, err := d.store.ListAllDoses(ctx, from, to)
	if err != nil {
		d.logger.Errorf("dispatch: failed to list doses: %v", err)
		return res
	}

	for _, detail := range details {
		loc, err := time.LoadLocation(detail.Timezone)
		if err != nil {
			d.logger.Warnf("dispatch: dose %s has bad zone %q", detail.ID, detail.Timezone)
			continue
		}
		due, err := DueAt(detail.Date, detail.Time, loc)
		if err != nil {
			d.logger.Warnf("dispatch: dose %s has bad date/time: %v", detail.ID, err)
			continue
		}

		if detail.Status == internal.DoseScheduled && !due.Before(now) && due.Before(now.Add(OnTimeWindow)) {
			if detail.NotifyEnabled {
				d.dispatch(ctx, detail, internal.DispatchOnTime, now, &res)
			}
			continue
		}

		deadline := due.Add(GracePeriod)
		inWindow := deadline.After(now.Add(-ReminderLookback)) && !deadline.After(now)
		if inWindow && detail.Status == internal.DoseScheduled && detail.Source == internal.SourceAuto {
			inst := detail.DoseInstance
			PromoteMissed(&inst)
			if err := d.store.UpdateDoseStatus(ctx, &inst); err != nil {
				d.logger.Errorf("dispatch: failed to promote dose %s: %v", inst.ID, err)
				continue
			}
			res.Promoted++
			d.cache.Invalidate(inst.UserID, MonthsOf(inst.Date)...)
			if detail.NotifyEnabled {
				d.dispatch(ctx, detail, internal.DispatchReminder, now, &res)
			}
		}
	}
	return res
}

// dispatch sends one notification kind for one instance unless the dispatch
// log shows it already went out in an earlier (possibly overlapping) cycle.
func (d *Dispatcher) dispatch(ctx context.Context, detail internal.DoseDetail, kind internal.DispatchKind, now time.Time, res *DispatchResult) {
	seen, err := d.store.DispatchSeen(ctx, detail.ID, kind)
	if err != nil {
		d.logger.Errorf("dispatch: dedup check failed for dose %s: %v", detail.ID, err)
		return
	}
	if seen {
		return
	}

	msg := buildMessage(detail, kind)
	res.SendErrors += d.fanOut(ctx, detail.UserID, msg)

	if err := d.store.RecordDispatch(ctx, &internal.DispatchRecord{
		InstanceID: detail.ID,
		Kind:       kind,
		SentAt:     now,
	}); err != nil {
		d.logger.Errorf("dispatch: failed to record dispatch for dose %s: %v", detail.ID, err)
		return
	}
	switch kind {
	case internal.DispatchOnTime:
		res.OnTime++
	case internal.DispatchReminder:
		res.Reminders++
	}
}

func buildMessage(detail internal.DoseDetail, kind internal.DispatchKind) notify.Message {
	msg := notify.Message{
		Tag: detail.ID + ":" + string(kind),
		Payload: map[string]string{
			"instance_id": detail.ID,
			"medicine_id": detail.MedicineID,
			"date":        detail.Date,
		},
	}
	switch kind {
	case internal.DispatchOnTime:
		msg.Title = "Time to take " + detail.MedicineName
		msg.Body = "Scheduled for " + detail.Time + "."
	case internal.DispatchReminder:
		msg.Title = "Missed dose: " + detail.MedicineName
		msg.Body = "The " + detail.Time + " dose was not logged."
	}
	return msg
}

// fanOut delivers to every target of the user concurrently. A target that
// reports itself invalid is deregistered; failures are counted and the cycle
// moves on without retrying.
func (d *Dispatcher) fanOut(ctx context.Context, userID string, msg notify.Message) int {
	targets, err := d.store.ListPushTargets(ctx, userID)
	if err != nil {
		d.logger.Errorf("dispatch: failed to list targets for user %s: %v", userID, err)
		return 1
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(targets))
	for _, t := range targets {
		wg.Add(1)
		go func(t internal.PushTarget) {
			defer wg.Done()
			if err := d.transport.Send(ctx, t, msg); err != nil {
				errCh <- err
				if errors.Is(err, notify.ErrInvalidTarget) {
					if rmErr := d.store.RemovePushTarget(ctx, t.ID); rmErr != nil {
						d.logger.Warnf("dispatch: failed to prune target %s: %v", t.ID, rmErr)
					} else {
						d.logger.Infof("dispatch: pruned invalid target %s", t.ID)
					}
				} else {
					d.logger.Warnf("dispatch: send to target %s failed: %v", t.ID, err)
				}
			}
		}(t)
	}
	wg.Wait()
	close(errCh)

	failures := 0
	for range errCh {
		failures++
	}
	return failures
}
