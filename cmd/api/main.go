package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"rollcall/internal/absence"
	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/logger"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

func main() {
	cfg, err := config.Load()
	log := logger.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logrus.NewEntry(log)); err != nil {
		log.WithError(err).Fatal("api server failed")
	}
}

func run(cfg config.App, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]httpapi.HealthCheck{}

	var st attendance.Store
	switch cfg.StoreBackend {
	case "memory":
		st = attendance.NewMemoryStore(nil)
		log.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := store.NewDB(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(ctx, db.Client); err != nil {
			return err
		}
		st = attendance.NewRepository(db.Client)
		health["db"] = db.Healthy
	}

	redis := store.NewRedis(cfg.RedisAddr)
	defer redis.Close()
	if cfg.QueueBackend == queue.BackendRedis {
		health["redis"] = redis.Healthy
	}

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
	if g, ok := q.(*queue.Guarded); ok {
		health["queue"] = func(context.Context) bool { return g.State() != gobreaker.StateOpen }
	}

	clock := clockwork.NewRealClock()
	outbox := notify.NewOutbox(q, st, clock, log)
	scheduler := absence.NewScheduler(st, outbox, clock, cfg.AttendanceWindow, log)
	svc := attendance.NewService(st, scheduler, clock, log)
	cycle := absence.NewCycle(scheduler, st, svc, clock, cfg.DayCycle, log)

	if cfg.QueueBackend == queue.BackendMemory {
		// Nothing else can read an in-process queue, so deliver here.
		go func() {
			if err := outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("notification delivery stopped")
			}
		}()
	}

	if err := cycle.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Options{
			Service:         svc,
			Cycle:           cycle,
			Health:          health,
			RateLimitPerMin: cfg.RateLimitPerMin,
			Clock:           clock,
			Log:             log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.HTTPPort).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cycle.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("day cycle did not stop cleanly")
	}
	return srv.Shutdown(shutdownCtx)
}
