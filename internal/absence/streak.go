package absence

import (
	"context"
	"time"

	"rollcall/internal/attendance"
)

const (
	// StreakWindowDays is how many trailing days, asOf included, a streak can span.
	StreakWindowDays = 5
	// NotificationThreshold is the streak length that queues a notification.
	NotificationThreshold = 3
)

// HistoryReader is the read side of the store the evaluator needs.
type HistoryReader interface {
	AttendanceHistory(ctx context.Context, personID string, from, to time.Time) ([]attendance.Mark, error)
}

// Evaluator computes consecutive-absence streaks. It never writes.
type Evaluator struct {
	history HistoryReader
}

func NewEvaluator(history HistoryReader) *Evaluator {
	return &Evaluator{history: history}
}

// Streak counts the days, walking back from asOf, that are absent or carry no
// mark at all. It stops at the first present mark or at the end of the window.
func (e *Evaluator) Streak(ctx context.Context, personID string, asOf time.Time) (int, error) {
	asOf = attendance.Today(asOf)
	from := asOf.AddDate(0, 0, -(StreakWindowDays - 1))
	marks, err := e.history.AttendanceHistory(ctx, personID, from, asOf)
	if err != nil {
		return 0, err
	}

	present := make(map[string]bool, len(marks))
	for _, m := range marks {
		if m.Status == attendance.StatusPresent {
			present[attendance.DateKey(m.Date)] = true
		}
	}

	streak := 0
	for day := asOf; !day.Before(from); day = day.AddDate(0, 0, -1) {
		if present[attendance.DateKey(day)] {
			break
		}
		streak++
	}
	return streak, nil
}
