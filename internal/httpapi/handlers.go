package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
)

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrAlreadyMarked),
		errors.Is(err, attendance.ErrDuplicateIdentifier),
		errors.Is(err, attendance.ErrAlreadySent):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrInvalidPerson):
		status = http.StatusBadRequest
	case errors.Is(err, attendance.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// dateParam reads a YYYY-MM-DD value, defaulting to today.
func (h *handler) dateParam(raw string) (time.Time, error) {
	if raw == "" {
		return attendance.Today(h.clock.Now()), nil
	}
	return attendance.ParseDate(raw)
}

func (h *handler) checkIn(c *gin.Context) {
	var req struct {
		CardID string `json:"card_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.CheckIn(c.Request.Context(), req.CardID)
	if errors.Is(err, attendance.ErrAlreadyMarked) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "person": p})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"person": p, "status": attendance.StatusPresent})
}

type personRequest struct {
	Name      string `json:"name" binding:"required"`
	CardID    string `json:"card_id" binding:"required"`
	ClassName string `json:"class_name"`
	Contact   string `json:"contact"`
}

func (h *handler) addPerson(c *gin.Context) {
	var req personRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.AddPerson(c.Request.Context(), attendance.Person{
		Name:      req.Name,
		CardID:    req.CardID,
		ClassName: req.ClassName,
		Contact:   req.Contact,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handler) listPeople(c *gin.Context) {
	people, err := h.svc.ListPeople(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"people": people})
}

func (h *handler) getPerson(c *gin.Context) {
	p, err := h.svc.GetPerson(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) updatePerson(c *gin.Context) {
	var req attendance.PersonUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.UpdatePerson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) removePerson(c *gin.Context) {
	if err := h.svc.RemovePerson(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) markAbsent(c *gin.Context) {
	if err := h.svc.ManualMarkAbsent(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"person_id": c.Param("id"), "status": attendance.StatusAbsent})
}

func (h *handler) history(c *gin.Context) {
	to, err := h.dateParam(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}
	from := to.AddDate(0, 0, -29)
	if raw := c.Query("from"); raw != "" {
		if from, err = attendance.ParseDate(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
	}
	marks, err := h.svc.History(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marks": marks})
}

func (h *handler) attendanceOn(c *gin.Context) {
	date, err := h.dateParam(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	marks, err := h.svc.AttendanceOn(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": attendance.DateKey(date), "marks": marks})
}

func (h *handler) dailyReport(c *gin.Context) {
	date, err := attendance.ParseDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	report, err := h.svc.DailyReport(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) listNotifications(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", attendance.NotificationPending, attendance.NotificationSent:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending or sent"})
		return
	}
	ns, err := h.svc.Notifications(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": ns})
}

func (h *handler) sendNotification(c *gin.Context) {
	n, err := h.svc.SendNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handler) scheduler(c *gin.Context) {
	body := gin.H{"active_timers": h.svc.ActiveCount()}
	if h.cycle != nil {
		body["state"] = h.cycle.State().String()
		body["day"] = h.cycle.Day()
	}
	c.JSON(http.StatusOK, body)
}
