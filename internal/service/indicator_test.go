package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

func TestLabel(t *testing.T) {
	assert.Equal(t, "I", Label("ibuprofen"))
	assert.Equal(t, "V", Label("Vitamin D"))
	assert.Equal(t, "아", Label("아스피린"))
	assert.Equal(t, "", Label(""))
}

func TestSummarize(t *testing.T) {
	set := func(ss ...internal.DoseStatus) map[internal.DoseStatus]bool {
		m := map[internal.DoseStatus]bool{}
		for _, s := range ss {
			m[s] = true
		}
		return m
	}

	assert.Equal(t, internal.DoseTaken, summarize(set(internal.DoseTaken)))
	// All-taken wins only unanimously; one missed taints the whole day.
	assert.Equal(t, internal.DoseMissed, summarize(set(internal.DoseTaken, internal.DoseMissed)))
	assert.Equal(t, internal.DoseMissed, summarize(set(internal.DoseSkipped, internal.DoseMissed)))
	assert.Equal(t, internal.DoseSkipped, summarize(set(internal.DoseTaken, internal.DoseSkipped)))
	assert.Equal(t, internal.DoseScheduled, summarize(set(internal.DoseTaken, internal.DoseScheduled)))
	assert.Equal(t, internal.DoseScheduled, summarize(set(internal.DoseScheduled)))
}

func newIndicatorService(store storage.Store, now time.Time) (*IndicatorService, *IndicatorCache) {
	cache := NewIndicatorCache()
	svc := NewIndicatorService(store, cache, language.Und, internal.NewNopLogger())
	svc.nowFn = func() time.Time { return now }
	return svc, cache
}

func seedDose(t *testing.T, store storage.Store, sched *internal.Schedule, date string, status internal.DoseStatus, source internal.StatusSource) *internal.DoseInstance {
	t.Helper()
	d := &internal.DoseInstance{
		ID:         sched.ID + "-" + date,
		ScheduleID: sched.ID,
		MedicineID: sched.MedicineID,
		UserID:     sched.UserID,
		Date:       date,
		Time:       sched.TimeOfDay,
		Status:     status,
		Source:     source,
		CreatedAt:  time.Now(),
	}
	inserted, err := store.InsertDoseIfAbsent(context.Background(), d)
	require.NoError(t, err)
	require.True(t, inserted)
	return d
}

func TestBuildMonthIndicatorOrdering(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	svc, _ := newIndicatorService(store, now)

	schedA := seedSchedule(t, store, "u1", "Aspirin", "08:00", dailyUTC())
	schedB := seedSchedule(t, store, "u1", "Benadryl", "09:00", dailyUTC())
	schedC := seedSchedule(t, store, "u1", "Claritin", "10:00", dailyUTC())

	seedDose(t, store, schedA, "2025-01-10", internal.DoseTaken, internal.SourceManual)
	seedDose(t, store, schedB, "2025-01-10", internal.DoseMissed, internal.SourceAuto)
	seedDose(t, store, schedC, "2025-01-10", internal.DoseSkipped, internal.SourceManual)

	dots, err := svc.BuildMonthIndicator(context.Background(), "u1", "2025-01")
	assert.NoError(t, err)
	day := dots["2025-01-10"]
	require.Len(t, day, 3)
	assert.Equal(t, internal.DoseMissed, day[0].Status)
	assert.Equal(t, "B", day[0].Label)
	assert.Equal(t, internal.DoseSkipped, day[1].Status)
	assert.Equal(t, "C", day[1].Label)
	assert.Equal(t, internal.DoseTaken, day[2].Status)
	assert.Equal(t, "A", day[2].Label)
}

func TestBuildMonthIndicatorTiesBreakAlphabetically(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	svc, _ := newIndicatorService(store, now)

	schedZ := seedSchedule(t, store, "u1", "Zyrtec", "08:00", dailyUTC())
	schedA := seedSchedule(t, store, "u1", "Aspirin", "09:00", dailyUTC())

	seedDose(t, store, schedZ, "2025-01-10", internal.DoseTaken, internal.SourceManual)
	seedDose(t, store, schedA, "2025-01-10", internal.DoseTaken, internal.SourceManual)

	dots, err := svc.BuildMonthIndicator(context.Background(), "u1", "2025-01")
	assert.NoError(t, err)
	day := dots["2025-01-10"]
	require.Len(t, day, 2)
	assert.Equal(t, "A", day[0].Label)
	assert.Equal(t, "Z", day[1].Label)
}

func TestBuildMonthIndicatorDerivesMissed(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	svc, _ := newIndicatorService(store, now)

	sched := seedSchedule(t, store, "u1", "Aspirin", "08:00", dailyUTC())

	// An auto row never acted on shows as missed once the grace period is
	// behind us; a manually reverted row from a past day is hidden instead.
	seedDose(t, store, sched, "2025-01-10", internal.DoseScheduled, internal.SourceAuto)
	seedDose(t, store, sched, "2025-01-11", internal.DoseScheduled, internal.SourceManual)
	// Tomorrow's dose has not reached its deadline and stays scheduled.
	seedDose(t, store, sched, "2025-01-21", internal.DoseScheduled, internal.SourceAuto)

	dots, err := svc.BuildMonthIndicator(context.Background(), "u1", "2025-01")
	assert.NoError(t, err)

	require.Len(t, dots["2025-01-10"], 1)
	assert.Equal(t, internal.DoseMissed, dots["2025-01-10"][0].Status)
	assert.NotContains(t, dots, "2025-01-11")
	require.Len(t, dots["2025-01-21"], 1)
	assert.Equal(t, internal.DoseScheduled, dots["2025-01-21"][0].Status)
}

func TestIndicatorCacheInvalidation(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	svc, cache := newIndicatorService(store, now)
	ctx := context.Background()

	sched := seedSchedule(t, store, "u1", "Aspirin", "08:00", dailyUTC())
	dose := seedDose(t, store, sched, "2025-01-10", internal.DoseTaken, internal.SourceManual)

	dots, err := svc.BuildMonthIndicator(ctx, "u1", "2025-01")
	require.NoError(t, err)
	assert.Equal(t, internal.DoseTaken, dots["2025-01-10"][0].Status)

	// A store write without invalidation is invisible inside the TTL.
	dose.Status = internal.DoseSkipped
	require.NoError(t, store.UpdateDoseStatus(ctx, dose))
	dots, err = svc.BuildMonthIndicator(ctx, "u1", "2025-01")
	require.NoError(t, err)
	assert.Equal(t, internal.DoseTaken, dots["2025-01-10"][0].Status)

	cache.Invalidate("u1", "2025-01")
	dots, err = svc.BuildMonthIndicator(ctx, "u1", "2025-01")
	require.NoError(t, err)
	assert.Equal(t, internal.DoseSkipped, dots["2025-01-10"][0].Status)
}

func TestMonthsOf(t *testing.T) {
	assert.Equal(t, []string{"2025-01", "2025-02"},
		MonthsOf("2025-01-30", "2025-01-31", "2025-02-01"))
	assert.Empty(t, MonthsOf())
}

func TestDayDetail(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	svc, _ := newIndicatorService(store, now)

	sched := seedSchedule(t, store, "u1", "Aspirin", "08:00", dailyUTC())
	seedDose(t, store, sched, "2025-01-10", internal.DoseScheduled, internal.SourceAuto)

	views, err := svc.DayDetail(context.Background(), "u1", "2025-01-10")
	assert.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Aspirin", views[0].MedicineName)
	assert.Equal(t, internal.DoseMissed, views[0].Status)

	_, err = svc.DayDetail(context.Background(), "u1", "Jan 10")
	assert.Error(t, err)
	assert.Equal(t, internal.KindValidation, internal.AsAppError(err).Kind)
}
