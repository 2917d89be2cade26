package attendance

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyMarked       = errors.New("attendance already marked for date")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrDuplicateIdentifier = errors.New("card id already registered")
	ErrInvalidPerson       = errors.New("invalid person")
	ErrAlreadySent         = errors.New("notification already sent")
	ErrReportExists        = errors.New("daily report already exists")
)

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"

	NotificationPending = "pending"
	NotificationSent    = "sent"

	KindConsecutiveAbsence = "consecutive_absence"
)

// Person is a tracked member of the roster.
type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CardID    string    `json:"card_id"`
	ClassName string    `json:"class_name,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonUpdate carries the optional fields of a roster edit.
type PersonUpdate struct {
	Name      *string `json:"name"`
	CardID    *string `json:"card_id"`
	ClassName *string `json:"class_name"`
	Contact   *string `json:"contact"`
}

// Apply returns p with the non-nil fields of u applied.
func (u PersonUpdate) Apply(p Person) Person {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.CardID != nil {
		p.CardID = *u.CardID
	}
	if u.ClassName != nil {
		p.ClassName = *u.ClassName
	}
	if u.Contact != nil {
		p.Contact = *u.Contact
	}
	return p
}

// Validate checks the fields a roster entry cannot live without.
func (p Person) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidPerson)
	}
	if p.CardID == "" {
		return fmt.Errorf("%w: card id required", ErrInvalidPerson)
	}
	return nil
}

// Mark is the single attendance record of a person for a date.
type Mark struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"person_id"`
	Date       time.Time `json:"date"`
	MarkedAt   time.Time `json:"marked_at"`
	Status     string    `json:"status"`
	AutoMarked bool      `json:"auto_marked"`
}

// Notification is a queued alert about a person.
type Notification struct {
	ID         string     `json:"id"`
	PersonID   string     `json:"person_id"`
	Kind       string     `json:"kind"`
	Message    string     `json:"message"`
	AbsentDays int        `json:"absent_days"`
	Status     string     `json:"status"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewAbsenceNotification builds the pending alert for a streak of absences.
func NewAbsenceNotification(p Person, days int, now time.Time) Notification {
	return Notification{
		PersonID:   p.ID,
		Kind:       KindConsecutiveAbsence,
		Message:    fmt.Sprintf("%s has been absent for %d consecutive days", p.Name, days),
		AbsentDays: days,
		Status:     NotificationPending,
		CreatedAt:  now.UTC(),
	}
}

// DailyReport summarises one date of attendance.
type DailyReport struct {
	Date      time.Time `json:"date"`
	DayNumber int       `json:"day_number"`
	Total     int       `json:"total"`
	Present   int       `json:"present"`
	Absent    int       `json:"absent"`
	Rate      float64   `json:"rate"`
	CreatedAt time.Time `json:"created_at"`
}

// Tally fills the counts of r from the roster size and the marks of its date.
func (r DailyReport) Tally(total int, marks []Mark) DailyReport {
	r.Total = total
	r.Present = 0
	for _, m := range marks {
		if m.Status == StatusPresent {
			r.Present++
		}
	}
	r.Absent = total - r.Present
	if r.Absent < 0 {
		r.Absent = 0
	}
	r.Rate = 0
	if total > 0 {
		r.Rate = math.Round(float64(r.Present)/float64(total)*10000) / 100
	}
	return r
}

// Today returns the calendar date of t as UTC midnight.
func Today(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey formats a date the way the store keys it.
func DateKey(t time.Time) string {
	return Today(t).Format(time.DateOnly)
}

// ParseDate reads a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return Today(t), nil
}
