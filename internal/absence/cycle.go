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

// State is the lifecycle state of a Cycle.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

var ErrCycleStarted = errors.New("day cycle already started")

// Roster lists the people to arm on every rollover.
type Roster interface {
	ListPeople(ctx context.Context) ([]attendance.Person, error)
}

// Reporter closes out a finished day.
type Reporter interface {
	DailyReport(ctx context.Context, date time.Time) (attendance.DailyReport, error)
}

// Cycle drives the day: every period it cancels all countdowns, reloads the
// roster and arms everyone again.
type Cycle struct {
	scheduler *Scheduler
	roster    Roster
	reporter  Reporter
	clock     clockwork.Clock
	period    time.Duration
	log       *logrus.Entry

	mu       sync.Mutex
	state    State
	day      int
	dayStart time.Time
	stop     context.CancelFunc
	done     chan struct{}
}

// NewCycle builds an idle controller. reporter may be nil.
func NewCycle(scheduler *Scheduler, roster Roster, reporter Reporter, clock clockwork.Clock, period time.Duration, log *logrus.Entry) *Cycle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cycle{
		scheduler: scheduler,
		roster:    roster,
		reporter:  reporter,
		clock:     clock,
		period:    period,
		log:       log.WithField("component", "day_cycle"),
	}
}

// Start moves Idle to Running. The first rollover completes before Start returns.
func (c *Cycle) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrCycleStarted
	}
	c.state = Running
	ctx, c.stop = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.rollover(ctx)
	tick := c.clock.NewTimer(c.period)
	c.advanceDay()
	go c.run(ctx, tick)
	return nil
}

func (c *Cycle) run(ctx context.Context, tick clockwork.Timer) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			tick.Stop()
			return
		case <-tick.Chan():
			c.closeDay(ctx)
			c.rollover(ctx)
			tick = c.clock.NewTimer(c.period)
			c.advanceDay()
			metrics.CycleTicks.Inc()
		}
	}
}

func (c *Cycle) rollover(ctx context.Context) {
	c.scheduler.CancelAll()
	people, err := c.roster.ListPeople(ctx)
	if err != nil {
		c.log.WithError(err).Error("roster reload failed, nobody armed this cycle")
		return
	}
	for _, p := range people {
		c.scheduler.Arm(p)
	}
	c.log.WithField("people", len(people)).Info("attendance window opened")
}

func (c *Cycle) advanceDay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day++
	c.dayStart = attendance.Today(c.clock.Now())
	metrics.CycleDay.Set(float64(c.day))
}

func (c *Cycle) closeDay(ctx context.Context) {
	if c.reporter == nil {
		return
	}
	c.mu.Lock()
	date, day := c.dayStart, c.day
	c.mu.Unlock()
	report, err := c.reporter.DailyReport(ctx, date)
	if err != nil {
		c.log.WithError(err).WithField("day", day).Error("daily report failed")
		return
	}
	c.log.WithFields(logrus.Fields{"day": day, "date": attendance.DateKey(date), "rate": report.Rate}).Info("day closed")
}

// Stop cancels the pending tick and every countdown. No countdown fires after
// Stop begins. Stop is terminal.
func (c *Cycle) Stop(ctx context.Context) error {
	c.mu.Lock()
	prev := c.state
	c.state = Stopped
	stop, done := c.stop, c.done
	c.mu.Unlock()

	if prev == Running {
		stop()
	}
	if err := c.scheduler.Shutdown(ctx); err != nil {
		return err
	}
	if prev == Running {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.log.Info("day cycle stopped")
	return nil
}

// State returns the current lifecycle state.
func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Day returns the sequential number of the running cycle, 0 before Start.
func (c *Cycle) Day() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day
}
