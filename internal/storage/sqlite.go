package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sis061/pilltime-sub000/internal"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS medicines (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	dosage TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_medicines_user ON medicines(user_id);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	medicine_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	time_of_day TEXT NOT NULL,
	recurrence TEXT NOT NULL,
	notify_enabled INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_schedules_medicine ON schedules(medicine_id);

CREATE TABLE IF NOT EXISTS dose_instances (
	id TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL,
	medicine_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	status TEXT NOT NULL,
	source TEXT NOT NULL,
	checked_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP,
	UNIQUE(schedule_id, date)
);
CREATE INDEX IF NOT EXISTS idx_doses_user_date ON dose_instances(user_id, date);

CREATE TABLE IF NOT EXISTS dispatch_log (
	instance_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	sent_at TIMESTAMP NOT NULL,
	PRIMARY KEY (instance_id, kind)
);

CREATE TABLE IF NOT EXISTS push_targets (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_user ON push_targets(user_id);
`

type SQLiteStorage struct {
	db     *sqlx.DB
	logger internal.Logger
}

func NewSQLiteStorage(path string, logger internal.Logger) (*SQLiteStorage, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		logger.Errorf("failed to open sqlite database: %v", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		logger.Errorf("failed to apply sqlite schema: %v", err)
		return nil, err
	}
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scheduleRow struct {
	ID            string     `db:"id"`
	MedicineID    string     `db:"medicine_id"`
	UserID        string     `db:"user_id"`
	TimeOfDay     string     `db:"time_of_day"`
	Recurrence    string     `db:"recurrence"`
	NotifyEnabled bool       `db:"notify_enabled"`
	CreatedAt     time.Time  `db:"created_at"`
	DeletedAt     *time.Time `db:"deleted_at"`
}

func (r scheduleRow) toSchedule() (internal.Schedule, error) {
	var pattern internal.RecurrencePattern
	if err := json.Unmarshal([]byte(r.Recurrence), &pattern); err != nil {
		return internal.Schedule{}, err
	}
	return internal.Schedule{
		ID:            r.ID,
		MedicineID:    r.MedicineID,
		UserID:        r.UserID,
		TimeOfDay:     r.TimeOfDay,
		Recurrence:    pattern,
		NotifyEnabled: r.NotifyEnabled,
		CreatedAt:     r.CreatedAt,
		DeletedAt:     r.DeletedAt,
	}, nil
}

type doseDetailRow struct {
	internal.DoseInstance
	MedicineName  string `db:"medicine_name"`
	Recurrence    string `db:"recurrence"`
	NotifyEnabled bool   `db:"notify_enabled"`
}

func (r doseDetailRow) toDetail() (internal.DoseDetail, error) {
	var pattern internal.RecurrencePattern
	if err := json.Unmarshal([]byte(r.Recurrence), &pattern); err != nil {
		return internal.DoseDetail{}, err
	}
	return internal.DoseDetail{
		DoseInstance:  r.DoseInstance,
		MedicineName:  r.MedicineName,
		Timezone:      pattern.Timezone,
		NotifyEnabled: r.NotifyEnabled,
	}, nil
}

// --- MedicineRepository ---

func (s *SQLiteStorage) SaveMedicine(ctx context.Context, m *internal.Medicine) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO medicines (id, user_id, name, dosage, note, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, dosage=excluded.dosage, note=excluded.note, updated_at=excluded.updated_at`,
		m.ID, m.UserID, m.Name, m.Dosage, m.Note, m.CreatedAt, m.UpdatedAt, m.DeletedAt)
	if err != nil {
		s.logger.Errorf("failed to save medicine: %v", err)
		return internal.TransientError(err.Error())
	}
	return nil
}

func (s *SQLiteStorage) GetMedicine(ctx context.Context, userID, id string) (*internal.Medicine, error) {
	var m internal.Medicine
	err := s.db.GetContext(ctx, &m, `SELECT id, user_id, name, dosage, note, created_at, updated_at, deleted_at
		FROM medicines WHERE id = ? AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.NotFoundError("medicine not found")
	}
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	if m.UserID != userID {
		return nil, internal.ForbiddenError("medicine belongs to another user")
	}
	return &m, nil
}

func (s *SQLiteStorage) ListMedicines(ctx context.Context, userID string) ([]internal.Medicine, error) {
	out := []internal.Medicine{}
	err := s.db.SelectContext(ctx, &out, `SELECT id, user_id, name, dosage, note, created_at, updated_at, deleted_at
		FROM medicines WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at`, userID)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return out, nil
}

func (s *SQLiteStorage) SoftDeleteMedicine(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE medicines SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		at, id, userID)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.NotFoundError("medicine not found")
	}
	return nil
}

// --- ScheduleRepository ---

func (s *SQLiteStorage) SaveSchedule(ctx context.Context, sc *internal.Schedule) error {
	raw, err := json.Marshal(sc.Recurrence)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO schedules (id, medicine_id, user_id, time_of_day, recurrence, notify_enabled, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.MedicineID, sc.UserID, sc.TimeOfDay, string(raw), sc.NotifyEnabled, sc.CreatedAt, sc.DeletedAt)
	if err != nil {
		s.logger.Errorf("failed to save schedule: %v", err)
		return internal.TransientError(err.Error())
	}
	return nil
}

func (s *SQLiteStorage) GetSchedule(ctx context.Context, id string) (*internal.Schedule, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row, `SELECT id, medicine_id, user_id, time_of_day, recurrence, notify_enabled, created_at, deleted_at
		FROM schedules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.NotFoundError("schedule not found")
	}
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	sc, err := row.toSchedule()
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *SQLiteStorage) ListSchedulesByMedicine(ctx context.Context, medicineID string, includeDeleted bool) ([]internal.Schedule, error) {
	query := `SELECT id, medicine_id, user_id, time_of_day, recurrence, notify_enabled, created_at, deleted_at
		FROM schedules WHERE medicine_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY time_of_day`
	var rows []scheduleRow
	if err := s.db.SelectContext(ctx, &rows, query, medicineID); err != nil {
		return nil, internal.TransientError(err.Error())
	}
	out := make([]internal.Schedule, 0, len(rows))
	for _, r := range rows {
		sc, err := r.toSchedule()
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *SQLiteStorage) SoftDeleteSchedule(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, at, id)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.NotFoundError("schedule not found")
	}
	return nil
}

// --- DoseRepository ---

func (s *SQLiteStorage) InsertDoseIfAbsent(ctx context.Context, d *internal.DoseInstance) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO dose_instances
		(id, schedule_id, medicine_id, user_id, date, time, status, source, checked_at, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ScheduleID, d.MedicineID, d.UserID, d.Date, d.Time, d.Status, d.Source, d.CheckedAt, d.CreatedAt, d.DeletedAt)
	if err != nil {
		s.logger.Errorf("failed to upsert dose instance: %v", err)
		return false, internal.TransientError(err.Error())
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStorage) GetDose(ctx context.Context, id string) (*internal.DoseInstance, error) {
	var d internal.DoseInstance
	err := s.db.GetContext(ctx, &d, `SELECT id, schedule_id, medicine_id, user_id, date, time, status, source, checked_at, created_at, deleted_at
		FROM dose_instances WHERE id = ? AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.NotFoundError("dose instance not found")
	}
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return &d, nil
}

func (s *SQLiteStorage) UpdateDoseStatus(ctx context.Context, d *internal.DoseInstance) error {
	res, err := s.db.ExecContext(ctx, `UPDATE dose_instances SET status = ?, source = ?, checked_at = ?
		WHERE id = ? AND deleted_at IS NULL`, d.Status, d.Source, d.CheckedAt, d.ID)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.NotFoundError("dose instance not found")
	}
	return nil
}

func (s *SQLiteStorage) DeleteFutureDoses(ctx context.Context, scheduleID, fromDate string) ([]string, error) {
	var dates []string
	err := s.db.SelectContext(ctx, &dates, `SELECT date FROM dose_instances WHERE schedule_id = ? AND date >= ?`, scheduleID, fromDate)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	if len(dates) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dose_instances WHERE schedule_id = ? AND date >= ?`, scheduleID, fromDate); err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return dates, nil
}

const sqliteDoseJoin = `SELECT d.id, d.schedule_id, d.medicine_id, d.user_id, d.date, d.time, d.status, d.source,
		d.checked_at, d.created_at, d.deleted_at,
		m.name AS medicine_name, s.recurrence, s.notify_enabled
	FROM dose_instances d
	JOIN schedules s ON s.id = d.schedule_id AND s.deleted_at IS NULL
	JOIN medicines m ON m.id = d.medicine_id AND m.deleted_at IS NULL
	WHERE d.deleted_at IS NULL AND d.date >= ? AND d.date <= ?`

func (s *SQLiteStorage) ListUserDoses(ctx context.Context, userID, fromDate, toDate string) ([]internal.DoseDetail, error) {
	var rows []doseDetailRow
	err := s.db.SelectContext(ctx, &rows, sqliteDoseJoin+` AND d.user_id = ? ORDER BY d.date, d.time, d.id`, fromDate, toDate, userID)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return detailRows(rows)
}

func (s *SQLiteStorage) ListAllDoses(ctx context.Context, fromDate, toDate string) ([]internal.DoseDetail, error) {
	var rows []doseDetailRow
	err := s.db.SelectContext(ctx, &rows, sqliteDoseJoin+` ORDER BY d.date, d.time, d.id`, fromDate, toDate)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return detailRows(rows)
}

func detailRows(rows []doseDetailRow) ([]internal.DoseDetail, error) {
	out := make([]internal.DoseDetail, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDetail()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// --- DispatchLogRepository ---

func (s *SQLiteStorage) DispatchSeen(ctx context.Context, instanceID string, kind internal.DispatchKind) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM dispatch_log WHERE instance_id = ? AND kind = ?`, instanceID, kind)
	if err != nil {
		return false, internal.TransientError(err.Error())
	}
	return n > 0, nil
}

func (s *SQLiteStorage) RecordDispatch(ctx context.Context, rec *internal.DispatchRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO dispatch_log (instance_id, kind, sent_at) VALUES (?, ?, ?)`,
		rec.InstanceID, rec.Kind, rec.SentAt)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	return nil
}

// --- PushTargetRepository ---

func (s *SQLiteStorage) SavePushTarget(ctx context.Context, t *internal.PushTarget) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO push_targets (id, user_id, endpoint, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.UserID, t.Endpoint, t.CreatedAt)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	return nil
}

func (s *SQLiteStorage) ListPushTargets(ctx context.Context, userID string) ([]internal.PushTarget, error) {
	out := []internal.PushTarget{}
	err := s.db.SelectContext(ctx, &out, `SELECT id, user_id, endpoint, created_at FROM push_targets WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return out, nil
}

func (s *SQLiteStorage) RemovePushTarget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM push_targets WHERE id = ?`, id)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.NotFoundError("push target not found")
	}
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*SQLiteStorage)(nil)
