package notify

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper runs Outbox.Sweep on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	outbox *Outbox
	spec   string
	log    *logrus.Entry
}

func NewSweeper(outbox *Outbox, spec string, log *logrus.Entry) *Sweeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		cron:   cron.New(),
		outbox: outbox,
		spec:   spec,
		log:    log.WithField("component", "sweeper"),
	}
}

// Start registers the sweep job and starts the cron engine.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.outbox.Sweep(context.Background()); err != nil {
			s.log.WithError(err).Error("notification sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("spec", s.spec).Info("notification sweeper started")
	return nil
}

// Stop stops scheduling and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("notification sweeper stopped")
}
