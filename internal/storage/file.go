package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sis061/pilltime-sub000/internal"
)

// FileStorage keeps everything in memory and persists each table as a JSON
// file with a debounced background writer. It is the default backend and the
// one the test suite runs against.
type FileStorage struct {
	medicines  map[string]*internal.Medicine
	schedules  map[string]*internal.Schedule
	doses      map[string]*internal.DoseInstance
	doseKeys   map[string]string // scheduleID|date -> dose id, the uniqueness constraint
	dispatches map[string]*internal.DispatchRecord
	targets    map[string]*internal.PushTarget
	mu         sync.RWMutex
	dataDir    string
	saveChan   chan struct{}
	shutdown   chan struct{}
	saveDelay  time.Duration
	logger     internal.Logger
}

func doseKey(scheduleID, date string) string {
	return scheduleID + "|" + date
}

func dispatchKey(instanceID string, kind internal.DispatchKind) string {
	return instanceID + "|" + string(kind)
}

func NewFileStorage(dataDir string, logger internal.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	s := &FileStorage{
		medicines:  make(map[string]*internal.Medicine),
		schedules:  make(map[string]*internal.Schedule),
		doses:      make(map[string]*internal.DoseInstance),
		doseKeys:   make(map[string]string),
		dispatches: make(map[string]*internal.DispatchRecord),
		targets:    make(map[string]*internal.PushTarget),
		dataDir:    dataDir,
		saveChan:   make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
		saveDelay:  500 * time.Millisecond,
		logger:     logger,
	}
	if err := s.loadAll(); err != nil {
		logger.Errorf("storage: failed to load data: %v", err)
		return nil, err
	}
	go s.saveWorker()
	return s, nil
}

func (s *FileStorage) file(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

func loadJSONFile[T any](path string) ([]*T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []*T
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (s *FileStorage) loadAll() error {
	meds, err := loadJSONFile[internal.Medicine](s.file("medicines"))
	if err != nil {
		return err
	}
	scheds, err := loadJSONFile[internal.Schedule](s.file("schedules"))
	if err != nil {
		return err
	}
	doses, err := loadJSONFile[internal.DoseInstance](s.file("doses"))
	if err != nil {
		return err
	}
	dispatches, err := loadJSONFile[internal.DispatchRecord](s.file("dispatches"))
	if err != nil {
		return err
	}
	targets, err := loadJSONFile[internal.PushTarget](s.file("targets"))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range meds {
		s.medicines[m.ID] = m
	}
	for _, sc := range scheds {
		s.schedules[sc.ID] = sc
	}
	for _, d := range doses {
		s.doses[d.ID] = d
		s.doseKeys[doseKey(d.ScheduleID, d.Date)] = d.ID
	}
	for _, r := range dispatches {
		s.dispatches[dispatchKey(r.InstanceID, r.Kind)] = r
	}
	for _, t := range targets {
		s.targets[t.ID] = t
	}
	return nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) saveAll() error {
	s.mu.RLock()
	meds := make([]*internal.Medicine, 0, len(s.medicines))
	for _, m := range s.medicines {
		meds = append(meds, m)
	}
	scheds := make([]*internal.Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		scheds = append(scheds, sc)
	}
	doses := make([]*internal.DoseInstance, 0, len(s.doses))
	for _, d := range s.doses {
		doses = append(doses, d)
	}
	dispatches := make([]*internal.DispatchRecord, 0, len(s.dispatches))
	for _, r := range s.dispatches {
		dispatches = append(dispatches, r)
	}
	targets := make([]*internal.PushTarget, 0, len(s.targets))
	for _, t := range s.targets {
		targets = append(targets, t)
	}
	s.mu.RUnlock()

	if err := atomicWriteFileJSON(s.file("medicines"), meds); err != nil {
		return err
	}
	if err := atomicWriteFileJSON(s.file("schedules"), scheds); err != nil {
		return err
	}
	if err := atomicWriteFileJSON(s.file("doses"), doses); err != nil {
		return err
	}
	if err := atomicWriteFileJSON(s.file("dispatches"), dispatches); err != nil {
		return err
	}
	return atomicWriteFileJSON(s.file("targets"), targets)
}

// saveWorker batches save requests to avoid a disk write per mutation.
func (s *FileStorage) saveWorker() {
	timer := time.NewTimer(s.saveDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.saveChan:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := s.saveAll(); err != nil {
				s.logger.Errorf("storage: error saving data: %v", err)
			}
		case <-s.shutdown:
			return
		}
	}
}

func (s *FileStorage) signalSave() {
	select {
	case s.saveChan <- struct{}{}:
	default:
	}
}

func (s *FileStorage) Close() error {
	close(s.shutdown)
	return s.saveAll()
}

// --- MedicineRepository ---

func (s *FileStorage) SaveMedicine(ctx context.Context, m *internal.Medicine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.medicines[m.ID] = &cp
	s.signalSave()
	return nil
}

func (s *FileStorage) GetMedicine(ctx context.Context, userID, id string) (*internal.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.medicines[id]
	if !ok || m.DeletedAt != nil {
		return nil, internal.NotFoundError("medicine not found")
	}
	if m.UserID != userID {
		return nil, internal.ForbiddenError("medicine belongs to another user")
	}
	cp := *m
	return &cp, nil
}

func (s *FileStorage) ListMedicines(ctx context.Context, userID string) ([]internal.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.Medicine{}
	for _, m := range s.medicines {
		if m.UserID == userID && m.DeletedAt == nil {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStorage) SoftDeleteMedicine(ctx context.Context, userID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.medicines[id]
	if !ok || m.DeletedAt != nil {
		return internal.NotFoundError("medicine not found")
	}
	if m.UserID != userID {
		return internal.ForbiddenError("medicine belongs to another user")
	}
	t := at
	m.DeletedAt = &t
	s.signalSave()
	return nil
}

// --- ScheduleRepository ---

func (s *FileStorage) SaveSchedule(ctx context.Context, sc *internal.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sc
	s.schedules[sc.ID] = &cp
	s.signalSave()
	return nil
}

func (s *FileStorage) GetSchedule(ctx context.Context, id string) (*internal.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, internal.NotFoundError("schedule not found")
	}
	cp := *sc
	return &cp, nil
}

func (s *FileStorage) ListSchedulesByMedicine(ctx context.Context, medicineID string, includeDeleted bool) ([]internal.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.Schedule{}
	for _, sc := range s.schedules {
		if sc.MedicineID != medicineID {
			continue
		}
		if sc.DeletedAt != nil && !includeDeleted {
			continue
		}
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimeOfDay < out[j].TimeOfDay
	})
	return out, nil
}

func (s *FileStorage) SoftDeleteSchedule(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok || sc.DeletedAt != nil {
		return internal.NotFoundError("schedule not found")
	}
	t := at
	sc.DeletedAt = &t
	s.signalSave()
	return nil
}

// --- DoseRepository ---

func (s *FileStorage) InsertDoseIfAbsent(ctx context.Context, d *internal.DoseInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := doseKey(d.ScheduleID, d.Date)
	if _, occupied := s.doseKeys[key]; occupied {
		return false, nil
	}
	cp := *d
	s.doses[d.ID] = &cp
	s.doseKeys[key] = d.ID
	s.signalSave()
	return true, nil
}

func (s *FileStorage) GetDose(ctx context.Context, id string) (*internal.DoseInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doses[id]
	if !ok || d.DeletedAt != nil {
		return nil, internal.NotFoundError("dose instance not found")
	}
	cp := *d
	return &cp, nil
}

func (s *FileStorage) UpdateDoseStatus(ctx context.Context, d *internal.DoseInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.doses[d.ID]
	if !ok || existing.DeletedAt != nil {
		return internal.NotFoundError("dose instance not found")
	}
	existing.Status = d.Status
	existing.Source = d.Source
	existing.CheckedAt = d.CheckedAt
	s.signalSave()
	return nil
}

func (s *FileStorage) DeleteFutureDoses(ctx context.Context, scheduleID, fromDate string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, d := range s.doses {
		if d.ScheduleID == scheduleID && d.Date >= fromDate {
			removed = append(removed, d.Date)
			delete(s.doseKeys, doseKey(d.ScheduleID, d.Date))
			delete(s.doses, id)
		}
	}
	if len(removed) > 0 {
		s.signalSave()
	}
	return removed, nil
}

func (s *FileStorage) ListUserDoses(ctx context.Context, userID, fromDate, toDate string) ([]internal.DoseDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.DoseDetail{}
	for _, d := range s.doses {
		if d.UserID != userID {
			continue
		}
		if detail, ok := s.joinLocked(d, fromDate, toDate); ok {
			out = append(out, detail)
		}
	}
	sortDetails(out)
	return out, nil
}

func (s *FileStorage) ListAllDoses(ctx context.Context, fromDate, toDate string) ([]internal.DoseDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.DoseDetail{}
	for _, d := range s.doses {
		if detail, ok := s.joinLocked(d, fromDate, toDate); ok {
			out = append(out, detail)
		}
	}
	sortDetails(out)
	return out, nil
}

// joinLocked applies the three-way soft-delete filter (dose, schedule,
// medicine) and the date range. Callers hold at least the read lock.
func (s *FileStorage) joinLocked(d *internal.DoseInstance, fromDate, toDate string) (internal.DoseDetail, bool) {
	if d.DeletedAt != nil || d.Date < fromDate || d.Date > toDate {
		return internal.DoseDetail{}, false
	}
	sc, ok := s.schedules[d.ScheduleID]
	if !ok || sc.DeletedAt != nil {
		return internal.DoseDetail{}, false
	}
	m, ok := s.medicines[d.MedicineID]
	if !ok || m.DeletedAt != nil {
		return internal.DoseDetail{}, false
	}
	return internal.DoseDetail{
		DoseInstance:  *d,
		MedicineName:  m.Name,
		Timezone:      sc.Recurrence.Timezone,
		NotifyEnabled: sc.NotifyEnabled,
	}, true
}

func sortDetails(out []internal.DoseDetail) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
}

// --- DispatchLogRepository ---

func (s *FileStorage) DispatchSeen(ctx context.Context, instanceID string, kind internal.DispatchKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dispatches[dispatchKey(instanceID, kind)]
	return ok, nil
}

func (s *FileStorage) RecordDispatch(ctx context.Context, rec *internal.DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.dispatches[dispatchKey(rec.InstanceID, rec.Kind)] = &cp
	s.signalSave()
	return nil
}

// --- PushTargetRepository ---

func (s *FileStorage) SavePushTarget(ctx context.Context, t *internal.PushTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.targets[t.ID] = &cp
	s.signalSave()
	return nil
}

func (s *FileStorage) ListPushTargets(ctx context.Context, userID string) ([]internal.PushTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.PushTarget{}
	for _, t := range s.targets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStorage) RemovePushTarget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[id]; !ok {
		return internal.NotFoundError("push target not found")
	}
	delete(s.targets, id)
	s.signalSave()
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*FileStorage)(nil)
