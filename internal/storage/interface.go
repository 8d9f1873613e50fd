package storage

import (
	"context"
	"time"

	"github.com/sis061/pilltime-sub000/internal"
)

type MedicineRepository interface {
	SaveMedicine(ctx context.Context, m *internal.Medicine) error
	// GetMedicine returns only rows that are not soft-deleted.
	GetMedicine(ctx context.Context, userID, id string) (*internal.Medicine, error)
	ListMedicines(ctx context.Context, userID string) ([]internal.Medicine, error)
	SoftDeleteMedicine(ctx context.Context, userID, id string, at time.Time) error
}

type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, s *internal.Schedule) error
	GetSchedule(ctx context.Context, id string) (*internal.Schedule, error)
	// ListSchedulesByMedicine returns active schedules unless includeDeleted is set.
	ListSchedulesByMedicine(ctx context.Context, medicineID string, includeDeleted bool) ([]internal.Schedule, error)
	SoftDeleteSchedule(ctx context.Context, id string, at time.Time) error
}

type DoseRepository interface {
	// InsertDoseIfAbsent upserts keyed on (ScheduleID, Date): it reports true
	// when the row was created and false when an instance already occupied the
	// key. An occupied key is never an error and never overwritten.
	InsertDoseIfAbsent(ctx context.Context, d *internal.DoseInstance) (bool, error)
	GetDose(ctx context.Context, id string) (*internal.DoseInstance, error)
	UpdateDoseStatus(ctx context.Context, d *internal.DoseInstance) error
	// DeleteFutureDoses hard-deletes instances of the schedule with
	// date >= fromDate and returns the dates removed. Rows before fromDate are
	// never touched.
	DeleteFutureDoses(ctx context.Context, scheduleID, fromDate string) ([]string, error)
	// ListUserDoses returns joined rows for one user in [fromDate, toDate],
	// filtered for soft deletion on dose, schedule and medicine.
	ListUserDoses(ctx context.Context, userID, fromDate, toDate string) ([]internal.DoseDetail, error)
	// ListAllDoses is the dispatch-scan variant of ListUserDoses across users.
	ListAllDoses(ctx context.Context, fromDate, toDate string) ([]internal.DoseDetail, error)
}

type DispatchLogRepository interface {
	DispatchSeen(ctx context.Context, instanceID string, kind internal.DispatchKind) (bool, error)
	RecordDispatch(ctx context.Context, rec *internal.DispatchRecord) error
}

type PushTargetRepository interface {
	SavePushTarget(ctx context.Context, t *internal.PushTarget) error
	ListPushTargets(ctx context.Context, userID string) ([]internal.PushTarget, error)
	RemovePushTarget(ctx context.Context, id string) error
}

// Store bundles every repository a backend provides.
type Store interface {
	MedicineRepository
	ScheduleRepository
	DoseRepository
	DispatchLogRepository
	PushTargetRepository
	Close() error
}
