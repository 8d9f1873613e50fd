package internal

import "time"

type User struct {
	ID    string `json:"id" db:"id"`
	Token string `json:"token" db:"token"`
	Name  string `json:"name" db:"name"`
}

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// RecurrencePattern is an immutable value owned by a Schedule. It is stored as
// a JSON document and replaced wholesale on edit, never partially mutated.
// DaysOfWeek uses 0=Sunday .. 6=Saturday.
type RecurrencePattern struct {
	Type        RecurrenceType `json:"type" db:"type"`
	DaysOfWeek  []int          `json:"days_of_week,omitempty" db:"days_of_week"`
	DaysOfMonth []int          `json:"days_of_month,omitempty" db:"days_of_month"`
	Timezone    string         `json:"timezone" db:"timezone"`
}

type Medicine struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Name      string     `json:"name" db:"name"`
	Dosage    string     `json:"dosage,omitempty" db:"dosage"`
	Note      string     `json:"note,omitempty" db:"note"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Schedule is one daily dose-time slot for a medicine. Edits never update a
// schedule row in place: the old row is soft-deleted and a fresh row created,
// even when the time value is unchanged, so instance generation always runs
// against a known-fresh schedule id.
type Schedule struct {
	ID            string            `json:"id" db:"id"`
	MedicineID    string            `json:"medicine_id" db:"medicine_id"`
	UserID        string            `json:"user_id" db:"user_id"`
	TimeOfDay     string            `json:"time_of_day" db:"time_of_day"` // HH:MM, 5-minute increments
	Recurrence    RecurrencePattern `json:"recurrence" db:"recurrence"`
	NotifyEnabled bool              `json:"notify_enabled" db:"notify_enabled"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	DeletedAt     *time.Time        `json:"deleted_at,omitempty" db:"deleted_at"`
}

type DoseStatus string

const (
	DoseScheduled DoseStatus = "scheduled"
	DoseTaken     DoseStatus = "taken"
	DoseSkipped   DoseStatus = "skipped"
	DoseMissed    DoseStatus = "missed"
)

type StatusSource string

const (
	SourceManual StatusSource = "manual"
	SourceAuto   StatusSource = "auto"
)

// DoseInstance is one concrete expected dose, unique per (ScheduleID, Date).
// Date is a civil date in the owning schedule's recorded timezone.
type DoseInstance struct {
	ID         string       `json:"id" db:"id"`
	ScheduleID string       `json:"schedule_id" db:"schedule_id"`
	MedicineID string       `json:"medicine_id" db:"medicine_id"`
	UserID     string       `json:"user_id" db:"user_id"`
	Date       string       `json:"date" db:"date"` // YYYY-MM-DD
	Time       string       `json:"time" db:"time"` // HH:MM, copied from the schedule at generation time
	Status     DoseStatus   `json:"status" db:"status"`
	Source     StatusSource `json:"source" db:"source"`
	CheckedAt  *time.Time   `json:"checked_at,omitempty" db:"checked_at"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	DeletedAt  *time.Time   `json:"deleted_at,omitempty" db:"deleted_at"`
}

// DoseDetail is a DoseInstance joined with the fields readers need from its
// schedule and medicine. Repositories only produce details for rows whose
// dose, schedule and medicine are all not soft-deleted.
type DoseDetail struct {
	DoseInstance
	MedicineName  string `json:"medicine_name" db:"medicine_name"`
	Timezone      string `json:"timezone" db:"timezone"`
	NotifyEnabled bool   `json:"notify_enabled" db:"notify_enabled"`
}

// DayDot is one calendar indicator entry: the per-medicine status summary for
// a single date, labeled with the first glyph of the medicine name.
type DayDot struct {
	MedicineID string     `json:"medicine_id" db:"medicine_id"`
	Label      string     `json:"label" db:"label"`
	Status     DoseStatus `json:"status" db:"status"`
}

type DispatchKind string

const (
	DispatchOnTime   DispatchKind = "on_time"
	DispatchReminder DispatchKind = "reminder"
)

// DispatchRecord marks that a notification of Kind was already sent for an
// instance, so overlapping or retried polling cycles never duplicate-notify.
type DispatchRecord struct {
	InstanceID string       `json:"instance_id" db:"instance_id"`
	Kind       DispatchKind `json:"kind" db:"kind"`
	SentAt     time.Time    `json:"sent_at" db:"sent_at"`
}

// PushTarget is a registered notification delivery target. The browser
// permission flow that produces the endpoint lives outside this service.
type PushTarget struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
