package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/logger"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker delivers queued notifications and sweeps the ones whose publish was lost.
func main() {
	cfg, err := config.Load()
	log := logger.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.QueueBackend == queue.BackendMemory || cfg.StoreBackend == "memory" {
		log.Fatal("worker needs a shared store and a broker queue")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logrus.NewEntry(log).WithField("process", "worker")); err != nil {
		log.WithError(err).Fatal("worker failed")
	}
	log.Info("worker stopped")
}

func run(ctx context.Context, cfg config.App, log *logrus.Entry) error {
	db, err := store.NewDB(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return err
	}
	defer db.Close()

	redis := store.NewRedis(cfg.RedisAddr)
	defer redis.Close()

	q, closeQueue, err := queue.Open(queue.Options{
		Backend:   cfg.QueueBackend,
		Name:      cfg.QueueName,
		Redis:     redis.Client,
		RabbitURL: cfg.RabbitMQURL,
		Log:       log,
	})
	if err != nil {
		return err
	}
	defer closeQueue()

	outbox := notify.NewOutbox(q, attendance.NewRepository(db.Client), clockwork.NewRealClock(), log)

	sweeper := notify.NewSweeper(outbox, cfg.NotificationSweep, log)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	log.WithField("backend", cfg.QueueBackend).Info("worker started")
	if err := outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
