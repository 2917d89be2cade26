package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// storeErr maps driver failures onto the package error taxonomy.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicateIdentifier
		case pgForeignKeyViolation:
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

const personColumns = `id, name, card_id, class_name, contact, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.Name, &p.CardID, &p.ClassName, &p.Contact, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListPeople returns the whole roster.
func (r *Repository) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+personColumns+` FROM people ORDER BY card_id`)
	if err != nil {
		return nil, storeErr("list people", err)
	}
	defer rows.Close()
	var people []Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, storeErr("list people", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list people", err)
	}
	return people, nil
}

// GetPerson returns a single person by id.
func (r *Repository) GetPerson(ctx context.Context, id string) (Person, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id)
	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Person{}, ErrNotFound
		}
		return Person{}, storeErr("get person", err)
	}
	return p, nil
}

// GetPersonByCard resolves a badge to its owner.
func (r *Repository) GetPersonByCard(ctx context.Context, cardID string) (Person, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE card_id = $1`, cardID)
	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Person{}, ErrNotFound
		}
		return Person{}, storeErr("get person by card", err)
	}
	return p, nil
}

// CreatePerson inserts a roster entry.
func (r *Repository) CreatePerson(ctx context.Context, p Person) (Person, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO people (id, name, card_id, class_name, contact)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.CardID, p.ClassName, p.Contact)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return Person{}, storeErr("create person", err)
	}
	return p, nil
}

// UpdatePerson overwrites the editable fields of a roster entry.
func (r *Repository) UpdatePerson(ctx context.Context, p Person) (Person, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE people
		SET name = $2, card_id = $3, class_name = $4, contact = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.CardID, p.ClassName, p.Contact)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Person{}, ErrNotFound
		}
		return Person{}, storeErr("update person", err)
	}
	return p, nil
}

// DeletePerson removes a person; marks and notifications go with it via ON DELETE CASCADE.
func (r *Repository) DeletePerson(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete person", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete person", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const markColumns = `id, person_id, mark_date, marked_at, status, auto_marked`

func scanMark(row scanner) (Mark, error) {
	var m Mark
	err := row.Scan(&m.ID, &m.PersonID, &m.Date, &m.MarkedAt, &m.Status, &m.AutoMarked)
	return m, err
}

func scanMarks(rows *sql.Rows, op string) ([]Mark, error) {
	defer rows.Close()
	var marks []Mark
	for rows.Next() {
		m, err := scanMark(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return marks, nil
}

// GetAttendanceMark returns the mark of a person for a date, or nil.
func (r *Repository) GetAttendanceMark(ctx context.Context, personID string, date time.Time) (*Mark, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+markColumns+`
		FROM attendance_marks
		WHERE person_id = $1 AND mark_date = $2
	`, personID, Today(date))
	m, err := scanMark(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("get attendance mark", err)
	}
	return &m, nil
}

// InsertAttendanceMark relies on the (person_id, mark_date) unique key: a
// conflicting insert affects no rows and reports ErrAlreadyMarked.
func (r *Repository) InsertAttendanceMark(ctx context.Context, m Mark) (Mark, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.MarkedAt.IsZero() {
		m.MarkedAt = time.Now().UTC()
	}
	m.Date = Today(m.Date)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_marks (id, person_id, mark_date, marked_at, status, auto_marked)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (person_id, mark_date) DO NOTHING
	`, m.ID, m.PersonID, m.Date, m.MarkedAt, m.Status, m.AutoMarked)
	if err != nil {
		return Mark{}, storeErr("insert attendance mark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Mark{}, storeErr("insert attendance mark", err)
	}
	if n == 0 {
		return Mark{}, ErrAlreadyMarked
	}
	return m, nil
}

// AttendanceHistory returns marks between from and to inclusive, newest first.
func (r *Repository) AttendanceHistory(ctx context.Context, personID string, from, to time.Time) ([]Mark, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+markColumns+`
		FROM attendance_marks
		WHERE person_id = $1 AND mark_date BETWEEN $2 AND $3
		ORDER BY mark_date DESC
	`, personID, Today(from), Today(to))
	if err != nil {
		return nil, storeErr("attendance history", err)
	}
	return scanMarks(rows, "attendance history")
}

// ListAttendanceByDate returns every mark recorded for date.
func (r *Repository) ListAttendanceByDate(ctx context.Context, date time.Time) ([]Mark, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+markColumns+`
		FROM attendance_marks
		WHERE mark_date = $1
		ORDER BY marked_at
	`, Today(date))
	if err != nil {
		return nil, storeErr("list attendance", err)
	}
	return scanMarks(rows, "list attendance")
}

const notificationColumns = `id, person_id, kind, message, absent_days, status, sent_at, created_at`

func scanNotification(row scanner) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.PersonID, &n.Kind, &n.Message, &n.AbsentDays, &n.Status, &n.SentAt, &n.CreatedAt)
	return n, err
}

// InsertNotification queues a notification.
func (r *Repository) InsertNotification(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = NotificationPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, person_id, kind, message, absent_days, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.PersonID, n.Kind, n.Message, n.AbsentDays, n.Status, n.CreatedAt)
	if err != nil {
		return Notification{}, storeErr("insert notification", err)
	}
	return n, nil
}

// ListNotifications returns notifications oldest first, optionally filtered by status.
func (r *Repository) ListNotifications(ctx context.Context, status string) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, storeErr("list notifications", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list notifications", err)
	}
	return out, nil
}

// MarkNotificationSent moves a pending notification to sent.
func (r *Repository) MarkNotificationSent(ctx context.Context, id string, at time.Time) (Notification, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE notifications
		SET status = 'sent', sent_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+notificationColumns, id, at.UTC())
	n, err := scanNotification(row)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Notification{}, storeErr("mark notification sent", err)
	}
	row = r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err = scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, storeErr("mark notification sent", err)
	}
	return n, ErrAlreadySent
}

const reportColumns = `report_date, day_number, total, present, absent, rate, created_at`

// GetDailyReport returns the report for date, or nil.
func (r *Repository) GetDailyReport(ctx context.Context, date time.Time) (*DailyReport, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM daily_reports WHERE report_date = $1`, Today(date))
	var rep DailyReport
	if err := row.Scan(&rep.Date, &rep.DayNumber, &rep.Total, &rep.Present, &rep.Absent, &rep.Rate, &rep.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("get daily report", err)
	}
	return &rep, nil
}

// InsertDailyReport stores a report once per date.
func (r *Repository) InsertDailyReport(ctx context.Context, rep DailyReport) (DailyReport, error) {
	rep.Date = Today(rep.Date)
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_reports (report_date, day_number, total, present, absent, rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (report_date) DO NOTHING
	`, rep.Date, rep.DayNumber, rep.Total, rep.Present, rep.Absent, rep.Rate, rep.CreatedAt)
	if err != nil {
		return DailyReport{}, storeErr("insert daily report", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DailyReport{}, storeErr("insert daily report", err)
	}
	if n == 0 {
		return DailyReport{}, ErrReportExists
	}
	return rep, nil
}

// LatestDayNumber returns the highest day number reported so far, 0 if none.
func (r *Repository) LatestDayNumber(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(day_number), 0) FROM daily_reports`).Scan(&n); err != nil {
		return 0, storeErr("latest day number", err)
	}
	return n, nil
}
