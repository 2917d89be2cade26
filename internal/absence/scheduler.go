package absence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
)

const expiryTimeout = 30 * time.Second

// expiry outcomes, used as the metric label
const (
	outcomeMarked    = "marked"
	outcomeNotified  = "notified"
	outcomeDiscarded = "discarded"
	outcomeStale     = "stale"
	outcomeError     = "error"
)

// Store is the part of the attendance store an expiry touches.
type Store interface {
	HistoryReader
	GetAttendanceMark(ctx context.Context, personID string, date time.Time) (*attendance.Mark, error)
	InsertAttendanceMark(ctx context.Context, m attendance.Mark) (attendance.Mark, error)
	InsertNotification(ctx context.Context, n attendance.Notification) (attendance.Notification, error)
}

// Publisher hands a stored notification to the delivery queue.
type Publisher interface {
	Publish(ctx context.Context, n attendance.Notification) error
}

type slot struct {
	timer clockwork.Timer
	seq   uint64
}

// Scheduler owns one absence countdown per person. When a countdown runs out
// the person is marked absent for the day unless a mark already exists.
type Scheduler struct {
	store     Store
	evaluator *Evaluator
	publisher Publisher
	clock     clockwork.Clock
	window    time.Duration
	log       *logrus.Entry

	mu       sync.Mutex
	slots    map[string]slot
	seq      uint64
	closed   bool
	inFlight sync.WaitGroup
}

// NewScheduler builds a scheduler whose countdowns last window. publisher may be nil.
func NewScheduler(store Store, publisher Publisher, clock clockwork.Clock, window time.Duration, log *logrus.Entry) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		store:     store,
		evaluator: NewEvaluator(store),
		publisher: publisher,
		clock:     clock,
		window:    window,
		log:       log.WithField("component", "scheduler"),
		slots:     make(map[string]slot),
	}
}

// Arm replaces any countdown of p with a fresh one.
func (s *Scheduler) Arm(p attendance.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.slots[p.ID]; ok {
		old.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.slots[p.ID] = slot{
		seq:   seq,
		timer: s.clock.AfterFunc(s.window, func() { s.expire(p, seq) }),
	}
	metrics.ActiveTimers.Set(float64(len(s.slots)))
}

// Cancel stops the countdown of personID, if any. An expiry that has already
// begun keeps running.
func (s *Scheduler) Cancel(personID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.slots[personID]; ok {
		cur.timer.Stop()
		delete(s.slots, personID)
		metrics.ActiveTimers.Set(float64(len(s.slots)))
	}
}

// CancelAll stops every countdown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
}

func (s *Scheduler) cancelAllLocked() {
	for id, cur := range s.slots {
		cur.timer.Stop()
		delete(s.slots, id)
	}
	metrics.ActiveTimers.Set(0)
}

// ActiveCount returns the number of live countdowns.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Shutdown cancels every countdown, refuses new ones and waits for running
// expiries to finish or ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.cancelAllLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// expire runs when the countdown armed with seq fires. Only the slot that
// armed it is removed afterwards, so a re-armed countdown survives.
func (s *Scheduler) expire(p attendance.Person, seq uint64) {
	s.mu.Lock()
	cur, live := s.slots[p.ID]
	if s.closed || !live || cur.seq != seq {
		s.mu.Unlock()
		metrics.Expiries.WithLabelValues(outcomeStale).Inc()
		return
	}
	s.inFlight.Add(1)
	s.mu.Unlock()
	defer s.inFlight.Done()
	defer s.release(p.ID, seq)

	ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
	defer cancel()
	outcome := s.handleExpiry(ctx, p)
	metrics.Expiries.WithLabelValues(outcome).Inc()
}

func (s *Scheduler) release(personID string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.slots[personID]; ok && cur.seq == seq {
		delete(s.slots, personID)
		metrics.ActiveTimers.Set(float64(len(s.slots)))
	}
}

func (s *Scheduler) handleExpiry(ctx context.Context, p attendance.Person) string {
	now := s.clock.Now().UTC()
	today := attendance.Today(now)
	log := s.log.WithFields(logrus.Fields{"person_id": p.ID, "date": attendance.DateKey(today)})

	existing, err := s.store.GetAttendanceMark(ctx, p.ID, today)
	if err != nil {
		log.WithError(err).Error("absence check failed")
		return outcomeError
	}
	if existing != nil {
		log.Debug("already marked, expiry discarded")
		return outcomeDiscarded
	}

	_, err = s.store.InsertAttendanceMark(ctx, attendance.Mark{
		PersonID:   p.ID,
		Date:       today,
		MarkedAt:   now,
		Status:     attendance.StatusAbsent,
		AutoMarked: true,
	})
	if errors.Is(err, attendance.ErrAlreadyMarked) {
		log.Debug("check-in won the race, expiry discarded")
		return outcomeDiscarded
	}
	if errors.Is(err, attendance.ErrNotFound) {
		log.Debug("person removed, expiry discarded")
		return outcomeDiscarded
	}
	if err != nil {
		log.WithError(err).Error("auto absence write failed")
		return outcomeError
	}
	log.Info("marked absent")

	streak, err := s.evaluator.Streak(ctx, p.ID, today)
	if err != nil {
		log.WithError(err).Error("streak evaluation failed")
		return outcomeError
	}
	if streak < NotificationThreshold {
		return outcomeMarked
	}

	n, err := s.store.InsertNotification(ctx, attendance.NewAbsenceNotification(p, streak, now))
	if err != nil {
		log.WithError(err).Error("notification write failed")
		return outcomeError
	}
	log.WithField("streak", streak).Warn("consecutive absence notification queued")
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, n); err != nil {
			log.WithError(err).Warn("notification publish failed, left for sweep")
		}
	}
	return outcomeNotified
}
