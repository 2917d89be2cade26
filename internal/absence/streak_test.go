package absence

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/attendance"
)

type fakeHistory struct {
	marks []attendance.Mark
	err   error
	calls int
	from  time.Time
	to    time.Time
}

func (f *fakeHistory) AttendanceHistory(ctx context.Context, personID string, from, to time.Time) ([]attendance.Mark, error) {
	f.calls++
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	var out []attendance.Mark
	for _, m := range f.marks {
		if m.PersonID != personID || m.Date.Before(from) || m.Date.After(to) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

var asOf = time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)

func mark(daysBefore int, status string) attendance.Mark {
	return attendance.Mark{
		PersonID: "p1",
		Date:     asOf.AddDate(0, 0, -daysBefore),
		Status:   status,
	}
}

func TestEvaluator_Streak(t *testing.T) {
	const (
		absent  = attendance.StatusAbsent
		present = attendance.StatusPresent
	)
	tests := []struct {
		name  string
		marks []attendance.Mark
		want  int
	}{
		{
			name: "no_history_counts_every_day",
			want: StreakWindowDays,
		},
		{
			name:  "three_prior_absences_no_mark_today_present_before",
			marks: []attendance.Mark{mark(1, absent), mark(2, absent), mark(3, absent), mark(4, present)},
			want:  4,
		},
		{
			name:  "three_prior_absences_no_mark_today",
			marks: []attendance.Mark{mark(1, absent), mark(2, absent), mark(3, absent)},
			want:  StreakWindowDays,
		},
		{
			name:  "present_two_days_back_breaks_streak",
			marks: []attendance.Mark{mark(1, absent), mark(2, present), mark(3, absent)},
			want:  2,
		},
		{
			name:  "present_today",
			marks: []attendance.Mark{mark(0, present), mark(1, absent), mark(2, absent)},
			want:  0,
		},
		{
			name:  "absence_today_only",
			marks: []attendance.Mark{mark(0, absent)},
			want:  StreakWindowDays,
		},
		{
			name:  "absent_yesterday_only",
			marks: []attendance.Mark{mark(1, absent)},
			want:  StreakWindowDays,
		},
		{
			name:  "window_is_five_days",
			marks: []attendance.Mark{mark(0, absent), mark(1, absent), mark(2, absent), mark(3, absent), mark(4, absent), mark(5, absent), mark(6, absent)},
			want:  StreakWindowDays,
		},
		{
			name:  "missing_day_between_absences_counts",
			marks: []attendance.Mark{mark(0, absent), mark(2, absent), mark(3, present)},
			want:  3,
		},
		{
			name:  "present_outside_window_ignored",
			marks: []attendance.Mark{mark(0, absent), mark(6, present)},
			want:  StreakWindowDays,
		},
		{
			name:  "present_on_last_window_day",
			marks: []attendance.Mark{mark(0, absent), mark(4, present)},
			want:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHistory{marks: tt.marks}
			got, err := NewEvaluator(h).Streak(context.Background(), "p1", asOf.Add(15*time.Hour))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected streak %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEvaluator_StreakQueriesTrailingWindow(t *testing.T) {
	h := &fakeHistory{}
	if _, err := NewEvaluator(h).Streak(context.Background(), "p1", asOf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.calls != 1 {
		t.Fatalf("expected 1 history call, got %d", h.calls)
	}
	if want := asOf.AddDate(0, 0, -4); !h.from.Equal(want) {
		t.Errorf("expected window start %s, got %s", want, h.from)
	}
	if !h.to.Equal(asOf) {
		t.Errorf("expected window end %s, got %s", asOf, h.to)
	}
}

func TestEvaluator_StreakPropagatesStoreError(t *testing.T) {
	h := &fakeHistory{err: attendance.ErrStoreUnavailable}
	_, err := NewEvaluator(h).Streak(context.Background(), "p1", asOf)
	if !errors.Is(err, attendance.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
