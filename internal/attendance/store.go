package attendance

import (
	"context"
	"time"
)

// Store is the durable record of people, attendance marks, notifications and reports.
//
// InsertAttendanceMark must be atomic on (person id, date): the first writer wins
// and every later insert for the same pair returns ErrAlreadyMarked.
type Store interface {
	ListPeople(ctx context.Context) ([]Person, error)
	GetPerson(ctx context.Context, id string) (Person, error)
	GetPersonByCard(ctx context.Context, cardID string) (Person, error)
	CreatePerson(ctx context.Context, p Person) (Person, error)
	UpdatePerson(ctx context.Context, p Person) (Person, error)
	// DeletePerson removes the person together with their marks and notifications.
	DeletePerson(ctx context.Context, id string) error

	// GetAttendanceMark returns nil, nil when no mark exists.
	GetAttendanceMark(ctx context.Context, personID string, date time.Time) (*Mark, error)
	InsertAttendanceMark(ctx context.Context, m Mark) (Mark, error)
	// AttendanceHistory returns marks in [from, to] ordered by date descending.
	AttendanceHistory(ctx context.Context, personID string, from, to time.Time) ([]Mark, error)
	ListAttendanceByDate(ctx context.Context, date time.Time) ([]Mark, error)

	InsertNotification(ctx context.Context, n Notification) (Notification, error)
	// ListNotifications filters by status unless status is empty.
	ListNotifications(ctx context.Context, status string) ([]Notification, error)
	MarkNotificationSent(ctx context.Context, id string, at time.Time) (Notification, error)

	// GetDailyReport returns nil, nil when no report exists.
	GetDailyReport(ctx context.Context, date time.Time) (*DailyReport, error)
	InsertDailyReport(ctx context.Context, r DailyReport) (DailyReport, error)
	LatestDayNumber(ctx context.Context) (int, error)
}
