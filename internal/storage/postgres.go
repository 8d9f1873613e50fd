package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sis061/pilltime-sub000/internal"
)

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(dsn string, logger internal.Logger) (*PostgresStorage, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	return &PostgresStorage{pool: pool, logger: logger}, nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// --- MedicineRepository ---

func (p *PostgresStorage) SaveMedicine(ctx context.Context, m *internal.Medicine) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO medicines (id, user_id, name, dosage, note, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, dosage = EXCLUDED.dosage, note = EXCLUDED.note, updated_at = EXCLUDED.updated_at`,
		m.ID, m.UserID, m.Name, m.Dosage, m.Note, m.CreatedAt, m.UpdatedAt, m.DeletedAt)
	if err != nil {
		p.logger.Errorf("failed to save medicine: %v", err)
		return internal.TransientError(err.Error())
	}
	return nil
}

func (p *PostgresStorage) GetMedicine(ctx context.Context, userID, id string) (*internal.Medicine, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, user_id, name, dosage, note, created_at, updated_at, deleted_at
		FROM medicines WHERE id = $1 AND deleted_at IS NULL`, id)
	var m internal.Medicine
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Note, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (p *PostgresStorage) ListMedicines(ctx context.Context, userID string) ([]internal.Medicine, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, name, dosage, note, created_at, updated_at, deleted_at
		FROM medicines WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at`, userID)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	defer rows.Close()

	out := []internal.Medicine{}
	for rows.Next() {
		var m internal.Medicine
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Note, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt); err != nil {
			return nil, internal.TransientError(err.Error())
		}
		out = append(out, m)
	}
	return out, nil
}

func (p *PostgresStorage) SoftDeleteMedicine(ctx context.Context, userID, id string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE medicines SET deleted_at = $1 WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL`,
		at, id, userID)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if tag.RowsAffected() == 0 {
		return internal.NotFoundError("medicine not found")
	}
	return nil
}

// --- ScheduleRepository ---

func (p *PostgresStorage) SaveSchedule(ctx context.Context, sc *internal.Schedule) error {
	raw, err := json.Marshal(sc.Recurrence)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO schedules (id, medicine_id, user_id, time_of_day, recurrence, notify_enabled, created_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sc.ID, sc.MedicineID, sc.UserID, sc.TimeOfDay, raw, sc.NotifyEnabled, sc.CreatedAt, sc.DeletedAt)
	if err != nil {
		p.logger.Errorf("failed to save schedule: %v", err)
		return internal.TransientError(err.Error())
	}
	return nil
}

func (p *PostgresStorage) GetSchedule(ctx context.Context, id string) (*internal.Schedule, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, medicine_id, user_id, time_of_day, recurrence, notify_enabled, created_at, deleted_at
		FROM schedules WHERE id = $1`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.NotFoundError("schedule not found")
	}
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return sc, nil
}

func scanSchedule(row pgx.Row) (*internal.Schedule, error) {
	var sc internal.Schedule
	var raw []byte
	if err := row.Scan(&sc.ID, &sc.MedicineID, &sc.UserID, &sc.TimeOfDay, &raw, &sc.NotifyEnabled, &sc.CreatedAt, &sc.DeletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &sc.Recurrence); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (p *PostgresStorage) ListSchedulesByMedicine(ctx context.Context, medicineID string, includeDeleted bool) ([]internal.Schedule, error) {
	query := `SELECT id, medicine_id, user_id, time_of_day, recurrence, notify_enabled, created_at, deleted_at
		FROM schedules WHERE medicine_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY time_of_day`
	rows, err := p.pool.Query(ctx, query, medicineID)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	defer rows.Close()

	out := []internal.Schedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, internal.TransientError(err.Error())
		}
		out = append(out, *sc)
	}
	return out, nil
}

func (p *PostgresStorage) SoftDeleteSchedule(ctx context.Context, id string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE schedules SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at, id)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if tag.RowsAffected() == 0 {
		return internal.NotFoundError("schedule not found")
	}
	return nil
}

// --- DoseRepository ---

func (p *PostgresStorage) InsertDoseIfAbsent(ctx context.Context, d *internal.DoseInstance) (bool, error) {
	tag, err := p.pool.Exec(ctx, `INSERT INTO dose_instances
		(id, schedule_id, medicine_id, user_id, date, time, status, source, checked_at, created_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (schedule_id, date) DO NOTHING`,
		d.ID, d.ScheduleID, d.MedicineID, d.UserID, d.Date, d.Time, d.Status, d.Source, d.CheckedAt, d.CreatedAt, d.DeletedAt)
	if err != nil {
		p.logger.Errorf("failed to upsert dose instance: %v", err)
		return false, internal.TransientError(err.Error())
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStorage) GetDose(ctx context.Context, id string) (*internal.DoseInstance, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, schedule_id, medicine_id, user_id, date, time, status, source, checked_at, created_at, deleted_at
		FROM dose_instances WHERE id = $1 AND deleted_at IS NULL`, id)
	var d internal.DoseInstance
	err := row.Scan(&d.ID, &d.ScheduleID, &d.MedicineID, &d.UserID, &d.Date, &d.Time, &d.Status, &d.Source, &d.CheckedAt, &d.CreatedAt, &d.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.NotFoundError("dose instance not found")
	}
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	return &d, nil
}

func (p *PostgresStorage) UpdateDoseStatus(ctx context.Context, d *internal.DoseInstance) error {
	tag, err := p.pool.Exec(ctx, `UPDATE dose_instances SET status = $1, source = $2, checked_at = $3
		WHERE id = $4 AND deleted_at IS NULL`, d.Status, d.Source, d.CheckedAt, d.ID)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if tag.RowsAffected() == 0 {
		return internal.NotFoundError("dose instance not found")
	}
	return nil
}

// DeleteFutureDoses is not wrapped in a transaction with the regeneration that
// follows it; a deployment needing no visible gap should wrap both in one.
func (p *PostgresStorage) DeleteFutureDoses(ctx context.Context, scheduleID, fromDate string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `DELETE FROM dose_instances WHERE schedule_id = $1 AND date >= $2 RETURNING date`,
		scheduleID, fromDate)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, internal.TransientError(err.Error())
		}
		dates = append(dates, d)
	}
	return dates, nil
}

const pgDoseJoin = `SELECT d.id, d.schedule_id, d.medicine_id, d.user_id, d.date, d.time, d.status, d.source,
		d.checked_at, d.created_at, d.deleted_at,
		m.name, s.recurrence, s.notify_enabled
	FROM dose_instances d
	JOIN schedules s ON s.id = d.schedule_id AND s.deleted_at IS NULL
	JOIN medicines m ON m.id = d.medicine_id AND m.deleted_at IS NULL
	WHERE d.deleted_at IS NULL AND d.date >= $1 AND d.date <= $2`

func (p *PostgresStorage) ListUserDoses(ctx context.Context, userID, fromDate, toDate string) ([]internal.DoseDetail, error) {
	rows, err := p.pool.Query(ctx, pgDoseJoin+` AND d.user_id = $3 ORDER BY d.date, d.time, d.id`, fromDate, toDate, userID)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	defer rows.Close()
	return scanDoseDetails(rows)
}

func (p *PostgresStorage) ListAllDoses(ctx context.Context, fromDate, toDate string) ([]internal.DoseDetail, error) {
	rows, err := p.pool.Query(ctx, pgDoseJoin+` ORDER BY d.date, d.time, d.id`, fromDate, toDate)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	defer rows.Close()
	return scanDoseDetails(rows)
}

func scanDoseDetails(rows pgx.Rows) ([]internal.DoseDetail, error) {
	out := []internal.DoseDetail{}
	for rows.Next() {
		var dd internal.DoseDetail
		var raw []byte
		err := rows.Scan(&dd.ID, &dd.ScheduleID, &dd.MedicineID, &dd.UserID, &dd.Date, &dd.Time, &dd.Status, &dd.Source,
			&dd.CheckedAt, &dd.CreatedAt, &dd.DeletedAt, &dd.MedicineName, &raw, &dd.NotifyEnabled)
		if err != nil {
			return nil, internal.TransientError(err.Error())
		}
		var pattern internal.RecurrencePattern
		if err := json.Unmarshal(raw, &pattern); err != nil {
			return nil, err
		}
		dd.Timezone = pattern.Timezone
		out = append(out, dd)
	}
	return out, nil
}

// --- DispatchLogRepository ---

func (p *PostgresStorage) DispatchSeen(ctx context.Context, instanceID string, kind internal.DispatchKind) (bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT COUNT(1) FROM dispatch_log WHERE instance_id = $1 AND kind = $2`, instanceID, kind)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, internal.TransientError(err.Error())
	}
	return n > 0, nil
}

func (p *PostgresStorage) RecordDispatch(ctx context.Context, rec *internal.DispatchRecord) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO dispatch_log (instance_id, kind, sent_at) VALUES ($1, $2, $3)
		ON CONFLICT (instance_id, kind) DO NOTHING`, rec.InstanceID, rec.Kind, rec.SentAt)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	return nil
}

// --- PushTargetRepository ---

func (p *PostgresStorage) SavePushTarget(ctx context.Context, t *internal.PushTarget) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO push_targets (id, user_id, endpoint, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.UserID, t.Endpoint, t.CreatedAt)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	return nil
}

func (p *PostgresStorage) ListPushTargets(ctx context.Context, userID string) ([]internal.PushTarget, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, endpoint, created_at FROM push_targets WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, internal.TransientError(err.Error())
	}
	defer rows.Close()

	out := []internal.PushTarget{}
	for rows.Next() {
		var t internal.PushTarget
		if err := rows.Scan(&t.ID, &t.UserID, &t.Endpoint, &t.CreatedAt); err != nil {
			return nil, internal.TransientError(err.Error())
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *PostgresStorage) RemovePushTarget(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM push_targets WHERE id = $1`, id)
	if err != nil {
		return internal.TransientError(err.Error())
	}
	if tag.RowsAffected() == 0 {
		return internal.NotFoundError("push target not found")
	}
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*PostgresStorage)(nil)
