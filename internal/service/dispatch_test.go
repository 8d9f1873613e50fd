package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/notify"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

// captureTransport records every message and can be told to fail.
type captureTransport struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (c *captureTransport) Send(ctx context.Context, t internal.PushTarget, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return c.err
}

func (c *captureTransport) messages() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Message(nil), c.sent...)
}

func newDispatcher(store storage.Store) (*Dispatcher, *captureTransport) {
	transport := &captureTransport{}
	d := NewDispatcher(store, transport, NewIndicatorCache(), internal.NewNopLogger())
	return d, transport
}

func registerTarget(t *testing.T, store storage.Store, userID, id string) {
	t.Helper()
	require.NoError(t, store.SavePushTarget(context.Background(), &internal.PushTarget{
		ID: id, UserID: userID, Endpoint: "https://push.example/" + id, CreatedAt: time.Now(),
	}))
}

func TestScanSendsOnTimeOnce(t *testing.T) {
	store := newTestStore(t)
	d, transport := newDispatcher(store)
	ctx := context.Background()

	sched := seedSchedule(t, store, "u1", "Aspirin", "08:00", dailyUTC())
	seedDose(t, store, sched, "2025-01-10", internal.DoseScheduled, internal.SourceAuto)
	registerTarget(t, store, "u1", "t1")

	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	res := d.Scan(ctx, now)
	assert.Equal(t, 1, res.OnTime)
	assert.Equal(t, 0, res.Promoted)
	assert.Equal(t, 0, res.SendErrors)
	require.Len(t, transport.messages(), 1)
	assert.Contains(t, transport.messages()[0].Title, "Aspirin")

	// An overlapping or repeated cycle is absorbed by the dispatch log.
	res = d.Scan(ctx, now)
	assert.Equal(t, 0, res.OnTime)
	assert.Len(t, transport.messages(), 1)
}

func TestScanPromotesAndReminds(t *testing.T) {
	store := newTestStore(t)
	d, transport := newDispatcher(store)
	ctx := context.Background()

	sched := seedSchedule(t, store, "u1", "Aspirin", "07:30", dailyUTC())
	dose := seedDose(t, store, sched, "2025-01-10", internal.DoseScheduled, internal.SourceAuto)
	registerTarget(t, store, "u1", "t1")

	// Deadline 08:00 falls exactly on the scan instant.
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	res := d.Scan(ctx, now)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, 1, res.Reminders)

	got, err := store.GetDose(ctx, dose.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.DoseMissed, got.Status)
	assert.Equal(t, internal.SourceAuto, got.Source)

	msgs := transport.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Title, "Missed dose")

	// The row is missed now, so a later cycle has nothing to promote.
	res = d.Scan(ctx, now.Add(30*time.Second))
	assert.Equal(t, 0, res.Promoted)
	assert.Equal(t, 0, res.Reminders)
}

func TestScanLeavesRevertedRowsAlone(t *testing.T) {
	store := newTestStore(t)
	d, transport := newDispatcher(store)
	ctx := context.Background()

	sched := seedSchedule(t, store, "u1", "Aspirin", "07:30", dailyUTC())
	dose := seedDose(t, store, sched, "2025-01-10", internal.DoseScheduled, internal.SourceManual)
	registerTarget(t, store, "u1", "t1")

	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	res := d.Scan(ctx, now)
	assert.Equal(t, 0, res.Promoted)
	assert.Empty(t, transport.messages())

	got, err := store.GetDose(ctx, dose.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.DoseScheduled, got.Status)
}

func TestScanSkipsMutedSchedules(t *testing.T) {
	store := newTestStore(t)
	d, transport := newDispatcher(store)
	ctx := context.Background()

	sched := seedSchedule(t, store, "u1", "Aspirin", "07:30", dailyUTC())
	sched.NotifyEnabled = false
	require.NoError(t, store.SaveSchedule(ctx, sched))
	dose := seedDose(t, store, sched, "2025-01-10", internal.DoseScheduled, internal.SourceAuto)
	registerTarget(t, store, "u1", "t1")

	// Promotion still happens with notifications muted; nothing is sent.
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	res := d.Scan(ctx, now)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, 0, res.Reminders)
	assert.Empty(t, transport.messages())

	got, err := store.GetDose(ctx, dose.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.DoseMissed, got.Status)
}

func TestScanPrunesInvalidTargets(t *testing.T) {
	store := newTestStore(t)
	d, transport := newDispatcher(store)
	transport.err = notify.ErrInvalidTarget
	ctx := context.Background()

	sched := seedSchedule(t, store, "u1", "Aspirin", "08:00", dailyUTC())
	seedDose(t, store, sched, "2025-01-10", internal.DoseScheduled, internal.SourceAuto)
	registerTarget(t, store, "u1", "t1")

	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	res := d.Scan(ctx, now)
	assert.Equal(t, 1, res.SendErrors)
	// The dispatch is still recorded; a dead endpoint is not retried.
	assert.Equal(t, 1, res.OnTime)

	targets, err := store.ListPushTargets(ctx, "u1")
	assert.NoError(t, err)
	assert.Empty(t, targets)
}
