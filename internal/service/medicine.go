package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

type ScheduleRequest struct {
	TimeOfDay     string                     `json:"time_of_day" validate:"required"`
	NotifyEnabled bool                       `json:"notify_enabled"`
	Recurrence    internal.RecurrencePattern `json:"recurrence"`
}

type MedicineRequest struct {
	Name      string            `json:"name" validate:"required,max=100"`
	Dosage    string            `json:"dosage" validate:"max=100"`
	Note      string            `json:"note" validate:"max=500"`
	Schedules []ScheduleRequest `json:"schedules" validate:"required,min=1"`
}

// MedicineView is a medicine with its active schedules, as the API returns it.
type MedicineView struct {
	internal.Medicine
	Schedules []internal.Schedule `json:"schedules"`
}

func ValidateMedicineRequest(req *MedicineRequest) error {
	if err := validate.Struct(req); err != nil {
		return internal.ValidationError(err.Error())
	}
	for _, sc := range req.Schedules {
		if err := ValidateTimeOfDay(sc.TimeOfDay); err != nil {
			return err
		}
		if err := ValidatePattern(sc.Recurrence); err != nil {
			return err
		}
	}
	return nil
}

// MedicineService owns the write side: medicine CRUD, wholesale schedule
// replacement and the instance regeneration it triggers, and manual intake
// status transitions.
type MedicineService struct {
	store      storage.Store
	cache      *IndicatorCache
	logger     internal.Logger
	windowDays int
	nowFn      func() time.Time
}

func NewMedicineService(store storage.Store, cache *IndicatorCache, windowDays int, logger internal.Logger) *MedicineService {
	return &MedicineService{
		store:      store,
		cache:      cache,
		logger:     logger,
		windowDays: windowDays,
		nowFn:      time.Now,
	}
}

func (s *MedicineService) CreateMedicine(ctx context.Context, user *internal.User, req *MedicineRequest) (*MedicineView, *GenerationResult, error) {
	now := s.nowFn()
	med := &internal.Medicine{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      req.Name,
		Dosage:    req.Dosage,
		Note:      req.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveMedicine(ctx, med); err != nil {
		return nil, nil, err
	}
	view, result, err := s.replaceSchedules(ctx, med, req.Schedules, nil)
	if err != nil {
		return nil, nil, err
	}
	return view, result, nil
}

func (s *MedicineService) GetMedicine(ctx context.Context, user *internal.User, id string) (*MedicineView, error) {
	med, err := s.store.GetMedicine(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	schedules, err := s.store.ListSchedulesByMedicine(ctx, med.ID, false)
	if err != nil {
		return nil, err
	}
	return &MedicineView{Medicine: *med, Schedules: schedules}, nil
}

func (s *MedicineService) ListMedicines(ctx context.Context, user *internal.User) ([]MedicineView, error) {
	meds, err := s.store.ListMedicines(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	out := make([]MedicineView, 0, len(meds))
	for _, m := range meds {
		schedules, err := s.store.ListSchedulesByMedicine(ctx, m.ID, false)
		if err != nil {
			return nil, err
		}
		out = append(out, MedicineView{Medicine: m, Schedules: schedules})
	}
	return out, nil
}

// UpdateMedicine rewrites the medicine fields and replaces every schedule:
// the old rows are soft-deleted and brand-new rows created even when nothing
// changed, so generation always runs against fresh schedule ids.
func (s *MedicineService) UpdateMedicine(ctx context.Context, user *internal.User, id string, req *MedicineRequest) (*MedicineView, *GenerationResult, error) {
	med, err := s.store.GetMedicine(ctx, user.ID, id)
	if err != nil {
		return nil, nil, err
	}
	med.Name = req.Name
	med.Dosage = req.Dosage
	med.Note = req.Note
	med.UpdatedAt = s.nowFn()
	if err := s.store.SaveMedicine(ctx, med); err != nil {
		return nil, nil, err
	}

	old, err := s.store.ListSchedulesByMedicine(ctx, med.ID, false)
	if err != nil {
		return nil, nil, err
	}
	return s.replaceSchedules(ctx, med, req.Schedules, old)
}

// DeleteMedicine soft-deletes the medicine and its schedules and removes
// today-or-future instances. Past instances stay on disk for the audit
// trail even though the soft-delete filter hides them from every read.
func (s *MedicineService) DeleteMedicine(ctx context.Context, user *internal.User, id string) error {
	med, err := s.store.GetMedicine(ctx, user.ID, id)
	if err != nil {
		return err
	}
	now := s.nowFn()
	schedules, err := s.store.ListSchedulesByMedicine(ctx, med.ID, false)
	if err != nil {
		return err
	}
	var months []string
	for _, sc := range schedules {
		dates, err := s.dropFuture(ctx, &sc, now)
		if err != nil {
			return err
		}
		months = append(months, dates...)
		if err := s.store.SoftDeleteSchedule(ctx, sc.ID, now); err != nil {
			return err
		}
	}
	if err := s.store.SoftDeleteMedicine(ctx, user.ID, id, now); err != nil {
		return err
	}
	s.cache.Invalidate(user.ID, MonthsOf(months...)...)
	return nil
}

// replaceSchedules soft-deletes old schedules (dropping only their
// today-or-future instances), creates fresh schedule rows and materializes
// the forward window for each. A failing schedule is reported in the result
// without blocking its siblings.
func (s *MedicineService) replaceSchedules(ctx context.Context, med *internal.Medicine, reqs []ScheduleRequest, old []internal.Schedule) (*MedicineView, *GenerationResult, error) {
	now := s.nowFn()
	result := &GenerationResult{}
	var touched []string

	for _, sc := range old {
		dates, err := s.dropFuture(ctx, &sc, now)
		if err != nil {
			return nil, nil, err
		}
		touched = append(touched, dates...)
		if err := s.store.SoftDeleteSchedule(ctx, sc.ID, now); err != nil {
			return nil, nil, err
		}
	}

	created := make([]internal.Schedule, 0, len(reqs))
	for _, req := range reqs {
		sched := internal.Schedule{
			ID:            uuid.NewString(),
			MedicineID:    med.ID,
			UserID:        med.UserID,
			TimeOfDay:     req.TimeOfDay,
			Recurrence:    req.Recurrence,
			NotifyEnabled: req.NotifyEnabled,
			CreatedAt:     now,
		}
		if err := s.store.SaveSchedule(ctx, &sched); err != nil {
			result.addFailure(sched.ID, err)
			continue
		}
		created = append(created, sched)

		n, err := MaterializeWindow(ctx, s.store, &sched, now, s.windowDays)
		result.Created += n
		if err != nil {
			s.logger.Errorf("generation failed for schedule %s: %v", sched.ID, err)
			result.addFailure(sched.ID, err)
			continue
		}
		loc, _ := time.LoadLocation(sched.Recurrence.Timezone)
		today := now.In(loc)
		touched = append(touched, today.Format(DateLayout), today.AddDate(0, 0, s.windowDays).Format(DateLayout))
	}

	// Synchronous, before the caller sees the write acknowledged.
	s.cache.Invalidate(med.UserID, MonthsOf(touched...)...)

	return &MedicineView{Medicine: *med, Schedules: created}, result, nil
}

// dropFuture removes the schedule's instances dated today or later in its own
// timezone and returns the removed dates. Historical rows are preserved
// unconditionally.
func (s *MedicineService) dropFuture(ctx context.Context, sc *internal.Schedule, now time.Time) ([]string, error) {
	loc, err := time.LoadLocation(sc.Recurrence.Timezone)
	if err != nil {
		return nil, internal.ValidationError("schedule timezone is not a valid IANA zone", "timezone")
	}
	today := now.In(loc).Format(DateLayout)
	return s.store.DeleteFutureDoses(ctx, sc.ID, today)
}

// SetIntakeStatus performs a manual lifecycle transition on one instance.
// Soft-deleted instances, schedules or medicines reject the attempt before
// the state machine is consulted.
func (s *MedicineService) SetIntakeStatus(ctx context.Context, user *internal.User, instanceID string, newStatus internal.DoseStatus, checkedAt *time.Time) (*internal.DoseInstance, error) {
	dose, err := s.store.GetDose(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if dose.UserID != user.ID {
		return nil, internal.ForbiddenError("dose instance belongs to another user")
	}
	sched, err := s.store.GetSchedule(ctx, dose.ScheduleID)
	if err != nil {
		return nil, err
	}
	if sched.DeletedAt != nil {
		return nil, internal.ForbiddenError("schedule has been deleted")
	}
	if _, err := s.store.GetMedicine(ctx, user.ID, dose.MedicineID); err != nil {
		return nil, internal.ForbiddenError("medicine has been deleted")
	}

	at := s.nowFn()
	if checkedAt != nil {
		at = *checkedAt
	}
	if err := ApplyTransition(dose, newStatus, at); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDoseStatus(ctx, dose); err != nil {
		return nil, err
	}
	s.cache.Invalidate(user.ID, MonthsOf(dose.Date)...)
	return dose, nil
}

// RegisterPushTarget and RemovePushTarget cover the delivery-target boundary;
// the browser permission flow that yields the endpoint is out of scope.
func (s *MedicineService) RegisterPushTarget(ctx context.Context, user *internal.User, endpoint string) (*internal.PushTarget, error) {
	if endpoint == "" {
		return nil, internal.ValidationError("endpoint is required", "endpoint")
	}
	t := &internal.PushTarget{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Endpoint:  endpoint,
		CreatedAt: s.nowFn(),
	}
	if err := s.store.SavePushTarget(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *MedicineService) RemovePushTarget(ctx context.Context, user *internal.User, id string) error {
	targets, err := s.store.ListPushTargets(ctx, user.ID)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if t.ID == id {
			return s.store.RemovePushTarget(ctx, id)
		}
	}
	return internal.NotFoundError("push target not found")
}
