package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"rollcall/internal/metrics"
)

// Timers is the per-person absence countdown set.
type Timers interface {
	Arm(p Person)
	Cancel(personID string)
	ActiveCount() int
}

// Service coordinates check-ins, roster edits and reports.
type Service struct {
	store  Store
	timers Timers
	clock  clockwork.Clock
	log    *logrus.Entry
}

// NewService creates a service backed by a store and the absence timers.
func NewService(store Store, timers Timers, clock clockwork.Clock, log *logrus.Entry) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: store, timers: timers, clock: clock, log: log}
}

// CheckIn records a present mark for the owner of cardID and stops their countdown.
// A second check-in on the same date returns the person and ErrAlreadyMarked.
func (s *Service) CheckIn(ctx context.Context, cardID string) (Person, error) {
	if cardID == "" {
		return Person{}, ErrNotFound
	}
	p, err := s.store.GetPersonByCard(ctx, cardID)
	if err != nil {
		metrics.CheckIns.WithLabelValues("unknown_card").Inc()
		return Person{}, err
	}
	now := s.clock.Now().UTC()
	_, err = s.store.InsertAttendanceMark(ctx, Mark{
		PersonID: p.ID,
		Date:     Today(now),
		MarkedAt: now,
		Status:   StatusPresent,
	})
	switch {
	case errors.Is(err, ErrAlreadyMarked):
		s.timers.Cancel(p.ID)
		metrics.CheckIns.WithLabelValues("already_marked").Inc()
		return p, ErrAlreadyMarked
	case err != nil:
		metrics.CheckIns.WithLabelValues("error").Inc()
		return Person{}, err
	}
	s.timers.Cancel(p.ID)
	metrics.CheckIns.WithLabelValues("present").Inc()
	s.log.WithFields(logrus.Fields{"person_id": p.ID, "card_id": cardID}).Info("checked in")
	return p, nil
}

// ManualMarkAbsent records a non-automatic absence for today.
func (s *Service) ManualMarkAbsent(ctx context.Context, personID string) error {
	p, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	_, err = s.store.InsertAttendanceMark(ctx, Mark{
		PersonID: p.ID,
		Date:     Today(now),
		MarkedAt: now,
		Status:   StatusAbsent,
	})
	if err != nil && !errors.Is(err, ErrAlreadyMarked) {
		return err
	}
	s.timers.Cancel(p.ID)
	if err != nil {
		return err
	}
	s.log.WithField("person_id", p.ID).Info("marked absent manually")
	return nil
}

// AddPerson registers a person and starts their countdown for the current cycle.
func (s *Service) AddPerson(ctx context.Context, p Person) (Person, error) {
	if err := p.Validate(); err != nil {
		return Person{}, err
	}
	created, err := s.store.CreatePerson(ctx, p)
	if err != nil {
		return Person{}, err
	}
	s.timers.Arm(created)
	s.log.WithFields(logrus.Fields{"person_id": created.ID, "card_id": created.CardID}).Info("person added")
	return created, nil
}

// UpdatePerson edits a roster entry. Running countdowns are left alone.
func (s *Service) UpdatePerson(ctx context.Context, id string, u PersonUpdate) (Person, error) {
	p, err := s.store.GetPerson(ctx, id)
	if err != nil {
		return Person{}, err
	}
	p = u.Apply(p)
	if err := p.Validate(); err != nil {
		return Person{}, err
	}
	return s.store.UpdatePerson(ctx, p)
}

// RemovePerson deletes the person, then cancels their countdown. A failed
// delete leaves the countdown running.
func (s *Service) RemovePerson(ctx context.Context, id string) error {
	if err := s.store.DeletePerson(ctx, id); err != nil {
		return err
	}
	s.timers.Cancel(id)
	s.log.WithField("person_id", id).Info("person removed")
	return nil
}

func (s *Service) GetPerson(ctx context.Context, id string) (Person, error) {
	return s.store.GetPerson(ctx, id)
}

func (s *Service) ListPeople(ctx context.Context) ([]Person, error) {
	return s.store.ListPeople(ctx)
}

// ActiveCount reports the number of live absence countdowns.
func (s *Service) ActiveCount() int {
	return s.timers.ActiveCount()
}

// AttendanceOn lists the marks of a date.
func (s *Service) AttendanceOn(ctx context.Context, date time.Time) ([]Mark, error) {
	return s.store.ListAttendanceByDate(ctx, date)
}

// History returns a person's marks in [from, to], newest first.
func (s *Service) History(ctx context.Context, personID string, from, to time.Time) ([]Mark, error) {
	if _, err := s.store.GetPerson(ctx, personID); err != nil {
		return nil, err
	}
	if from.After(to) {
		from, to = to, from
	}
	return s.store.AttendanceHistory(ctx, personID, from, to)
}

// DailyReport returns the report for date, creating it from the current roster
// and that date's marks when none exists yet.
func (s *Service) DailyReport(ctx context.Context, date time.Time) (DailyReport, error) {
	date = Today(date)
	if existing, err := s.store.GetDailyReport(ctx, date); err != nil {
		return DailyReport{}, err
	} else if existing != nil {
		return *existing, nil
	}

	people, err := s.store.ListPeople(ctx)
	if err != nil {
		return DailyReport{}, err
	}
	marks, err := s.store.ListAttendanceByDate(ctx, date)
	if err != nil {
		return DailyReport{}, err
	}
	latest, err := s.store.LatestDayNumber(ctx)
	if err != nil {
		return DailyReport{}, err
	}
	report := DailyReport{Date: date, DayNumber: latest + 1, CreatedAt: s.clock.Now().UTC()}.Tally(len(people), marks)

	created, err := s.store.InsertDailyReport(ctx, report)
	if errors.Is(err, ErrReportExists) {
		existing, err := s.store.GetDailyReport(ctx, date)
		if err != nil {
			return DailyReport{}, err
		}
		if existing == nil {
			return DailyReport{}, ErrNotFound
		}
		return *existing, nil
	}
	if err != nil {
		return DailyReport{}, err
	}
	s.log.WithFields(logrus.Fields{"date": DateKey(date), "day": created.DayNumber, "rate": created.Rate}).Info("daily report created")
	return created, nil
}

// Notifications lists notifications, optionally by status.
func (s *Service) Notifications(ctx context.Context, status string) ([]Notification, error) {
	return s.store.ListNotifications(ctx, status)
}

// SendNotification performs the send-action: pending becomes sent.
func (s *Service) SendNotification(ctx context.Context, id string) (Notification, error) {
	return s.store.MarkNotificationSent(ctx, id, s.clock.Now())
}
