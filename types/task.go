package types

import "time"

// Priority is the importance level of a task. It serializes as the
// lowercase token used on the wire ("low", "medium", "high").
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the enumerated priority values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status is the completion state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the enumerated status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted:
		return true
	}
	return false
}

// Task represents a single tracked item owned by a user.
type Task struct {
	// ID is the unique identifier of the task.
	ID int `json:"id" db:"id"`

	// UserID identifies the owning user. It is set at creation from the
	// authenticated caller and never changes.
	UserID int `json:"user_id" db:"user_id"`

	// CategoryID optionally links the task to one of the owner's
	// categories. Nil when the task is uncategorized or the category
	// was deleted.
	CategoryID *int `json:"category_id" db:"category_id"`

	// Title is the short summary of the task.
	Title string `json:"title" db:"title"`

	// Description is free-form text with any additional detail.
	Description string `json:"description" db:"description"`

	// Priority is the importance level. Defaults to medium.
	Priority Priority `json:"priority" db:"priority"`

	// Status is the completion state. Defaults to pending.
	Status Status `json:"status" db:"status"`

	// DueDate is the calendar date the task is due, if any. Only the
	// date component is meaningful.
	DueDate *time.Time `json:"due_date" db:"due_date"`

	// CompletedAt is the time the task was completed. It is non-nil
	// exactly when Status is completed.
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`

	// CreatedAt is the timestamp at which the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsOverdue reports whether the task is pending with a due date strictly
// before the given day.
func (t Task) IsOverdue(today time.Time) bool {
	if t.Status != StatusPending || t.DueDate == nil {
		return false
	}
	return DateOf(*t.DueDate).Before(DateOf(today))
}

// DaysUntilDue returns the signed number of days from today until the due
// date (negative when past). The second result is false when the task has
// no due date. The count is an exact calendar-date difference, so DST
// transitions between the two dates do not skew it.
func (t Task) DaysUntilDue(today time.Time) (int, bool) {
	if t.DueDate == nil {
		return 0, false
	}
	days := int(utcDate(*t.DueDate).Sub(utcDate(today)).Hours() / 24)
	return days, true
}

// DateOf truncates a time to midnight of its calendar date, keeping the
// location so same-day comparisons are stable.
func DateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// utcDate maps a time to midnight of its calendar date in UTC, where
// every day is exactly 24 hours.
func utcDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
