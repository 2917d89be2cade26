// Package httpapi exposes check-ins, roster edits and reports over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rollcall/internal/absence"
	"rollcall/internal/attendance"
	"rollcall/internal/httpmiddleware"
)

// Attendance is the service the handlers drive.
type Attendance interface {
	CheckIn(ctx context.Context, cardID string) (attendance.Person, error)
	ManualMarkAbsent(ctx context.Context, personID string) error
	AddPerson(ctx context.Context, p attendance.Person) (attendance.Person, error)
	UpdatePerson(ctx context.Context, id string, u attendance.PersonUpdate) (attendance.Person, error)
	RemovePerson(ctx context.Context, id string) error
	GetPerson(ctx context.Context, id string) (attendance.Person, error)
	ListPeople(ctx context.Context) ([]attendance.Person, error)
	ActiveCount() int
	AttendanceOn(ctx context.Context, date time.Time) ([]attendance.Mark, error)
	History(ctx context.Context, personID string, from, to time.Time) ([]attendance.Mark, error)
	DailyReport(ctx context.Context, date time.Time) (attendance.DailyReport, error)
	Notifications(ctx context.Context, status string) ([]attendance.Notification, error)
	SendNotification(ctx context.Context, id string) (attendance.Notification, error)
}

// CycleStatus reports the day cycle for /v1/scheduler.
type CycleStatus interface {
	State() absence.State
	Day() int
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Options struct {
	Service         Attendance
	Cycle           CycleStatus
	Health          map[string]HealthCheck
	RateLimitPerMin int
	Clock           clockwork.Clock
	Log             *logrus.Entry
}

type handler struct {
	svc   Attendance
	cycle CycleStatus
	clock clockwork.Clock
	log   *logrus.Entry
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(opts Options) *gin.Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &handler{svc: opts.Service, cycle: opts.Cycle, clock: opts.Clock, log: opts.Log.WithField("component", "http")}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(h.log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.RequestMetrics())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	if opts.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin, opts.Clock).GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(opts.Health))

	v1 := r.Group("/v1")
	v1.POST("/checkins", h.checkIn)
	v1.GET("/people", h.listPeople)
	v1.POST("/people", h.addPerson)
	v1.GET("/people/:id", h.getPerson)
	v1.PUT("/people/:id", h.updatePerson)
	v1.DELETE("/people/:id", h.removePerson)
	v1.POST("/people/:id/absent", h.markAbsent)
	v1.GET("/people/:id/history", h.history)
	v1.GET("/attendance", h.attendanceOn)
	v1.GET("/reports/:date", h.dailyReport)
	v1.GET("/notifications", h.listNotifications)
	v1.POST("/notifications/:id/send", h.sendNotification)
	v1.GET("/scheduler", h.scheduler)

	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			ok := check(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

func requestLogger(log *logrus.Entry, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		if skipped[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Info("request")
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
