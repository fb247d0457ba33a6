// internal/infra/httpapi/handler.go
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oncall_reminder_engine/internal/app"
	"oncall_reminder_engine/internal/domain/period"
	"oncall_reminder_engine/internal/domain/reminder"
	idb "oncall_reminder_engine/internal/infra/database"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LifecycleRunner creates upcoming periods.
type LifecycleRunner interface {
	EnsureUpcomingPeriod(ctx context.Context, now time.Time) (*app.LifecycleResult, error)
}

// TickRunner runs one reminder tick.
type TickRunner interface {
	Tick(ctx context.Context, now time.Time, opts app.TickOptions) *app.TickSummary
}

// ReminderRecorder marks reminders as handled without sending them.
type ReminderRecorder interface {
	MarkSent(ctx context.Context, key reminder.EventKey, note string) (reminder.ClaimResult, error)
}

// SettingsWriter is the settings write path.
type SettingsWriter interface {
	Apply(ctx context.Context, periodID int64, in period.SettingsInput) (*period.AutomationSettings, error)
	RecomputeForPeriod(ctx context.Context, periodID int64) (*period.AutomationSettings, error)
}

// StatusReader reports open periods.
type StatusReader interface {
	Status(ctx context.Context, now time.Time) ([]app.PeriodStatus, error)
}

// Pinger checks a backing store, e.g. *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the job trigger endpoints.
type Handler struct {
	lifecycle LifecycleRunner
	reminders TickRunner
	recorder  ReminderRecorder
	settings  SettingsWriter
	status    StatusReader
	db        Pinger
	timeout   time.Duration
	logger    *logrus.Entry
	now       func() time.Time
}

func NewHandler(
	lifecycle LifecycleRunner,
	reminders TickRunner,
	recorder ReminderRecorder,
	settings SettingsWriter,
	status StatusReader,
	db Pinger,
	timeout time.Duration,
	logger *logrus.Entry,
) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		reminders: reminders,
		recorder:  recorder,
		settings:  settings,
		status:    status,
		db:        db,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

type tickResponse struct {
	OK bool `json:"ok"`
	*app.TickSummary
}

type lifecycleResponse struct {
	OK bool `json:"ok"`
	*app.LifecycleResult
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}

// resolveNow honours the optional ?now=RFC3339 virtual time.
func (h *Handler) resolveNow(c *gin.Context) (time.Time, bool) {
	nowStr := c.Query("now")
	if nowStr == "" {
		return h.now(), true
	}
	parsed, err := time.Parse(time.RFC3339, nowStr)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid now, expected RFC3339")
		return time.Time{}, false
	}
	h.logger.WithField("virtual_now", parsed).Info("Using virtual time")
	return parsed, true
}

func (h *Handler) jobContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.timeout)
	}
	return context.WithCancel(c.Request.Context())
}

func queryFlag(c *gin.Context, name string) bool {
	switch strings.ToLower(c.Query(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// GeneratePeriod handles POST /jobs/periods/generate.
func (h *Handler) GeneratePeriod(c *gin.Context) {
	now, ok := h.resolveNow(c)
	if !ok {
		return
	}
	ctx, cancel := h.jobContext(c)
	defer cancel()

	res, err := h.lifecycle.EnsureUpcomingPeriod(ctx, now)
	if err != nil {
		h.logger.WithError(err).Error("Period lifecycle failed")
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, lifecycleResponse{OK: true, LifecycleResult: res})
}

// Tick handles POST /jobs/reminders/tick. Partial failures are reported in
// the body with a 200.
func (h *Handler) Tick(c *gin.Context) {
	now, ok := h.resolveNow(c)
	if !ok {
		return
	}
	ctx, cancel := h.jobContext(c)
	defer cancel()

	summary := h.reminders.Tick(ctx, now, app.TickOptions{
		DryRun: queryFlag(c, "dry_run"),
		Debug:  queryFlag(c, "debug"),
		RunID:  c.GetHeader("X-Run-ID"),
	})
	c.JSON(http.StatusOK, tickResponse{OK: true, TickSummary: summary})
}

type markSentRequest struct {
	PeriodID  int64  `json:"period_id" binding:"required"`
	Kind      string `json:"kind" binding:"required"`
	WindowKey string `json:"window_key" binding:"required"`
	Target    string `json:"target" binding:"required"`
	Note      string `json:"note"`
}

// MarkSent handles POST /jobs/reminders/mark-sent. It writes a sent ledger
// row so later ticks skip that reminder.
func (h *Handler) MarkSent(c *gin.Context) {
	var req markSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid reminder body")
		return
	}
	key := reminder.EventKey{
		PeriodID:  req.PeriodID,
		Kind:      reminder.Kind(req.Kind),
		WindowKey: req.WindowKey,
		Target:    req.Target,
	}

	res, err := h.recorder.MarkSent(c.Request.Context(), key, req.Note)
	switch {
	case errors.Is(err, app.ErrInvalidEventKey):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, idb.ErrPeriodNotFound):
		respondError(c, http.StatusNotFound, "period not found")
		return
	case err != nil:
		h.logger.WithError(err).WithField("key", key.String()).Error("Mark sent failed")
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res.String()})
}

func periodIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid period id")
		return 0, false
	}
	return id, true
}

func (h *Handler) settingsError(c *gin.Context, periodID int64, err error) {
	if errors.Is(err, idb.ErrPeriodNotFound) {
		respondError(c, http.StatusNotFound, "period not found")
		return
	}
	h.logger.WithError(err).WithField("period_id", periodID).Error("Settings write failed")
	respondError(c, http.StatusInternalServerError, err.Error())
}

// PutSettings handles PUT /jobs/periods/:id/settings. Invalid offsets fall
// back to their defaults rather than failing.
func (h *Handler) PutSettings(c *gin.Context) {
	id, ok := periodIDParam(c)
	if !ok {
		return
	}
	var in period.SettingsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid settings body")
		return
	}

	settings, err := h.settings.Apply(c.Request.Context(), id, in)
	if err != nil {
		h.settingsError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": settings})
}

// RecomputeSettings handles POST /jobs/periods/:id/settings/recompute.
func (h *Handler) RecomputeSettings(c *gin.Context) {
	id, ok := periodIDParam(c)
	if !ok {
		return
	}
	settings, err := h.settings.RecomputeForPeriod(c.Request.Context(), id)
	if err != nil {
		h.settingsError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": settings})
}

// Status handles GET /jobs/status.
func (h *Handler) Status(c *gin.Context) {
	now, ok := h.resolveNow(c)
	if !ok {
		return
	}
	statuses, err := h.status.Status(c.Request.Context(), now)
	if err != nil {
		h.logger.WithError(err).Error("Status failed")
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if statuses == nil {
		statuses = []app.PeriodStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "periods": statuses})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
