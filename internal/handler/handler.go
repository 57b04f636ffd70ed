package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"absensi/internal/apperr"
	"absensi/internal/attendance"
	"absensi/internal/policy"
	"absensi/internal/schedule"
)

// Scanner applies attendance scans.
type Scanner interface {
	Scan(ctx context.Context, p policy.Policy, req attendance.ScanRequest) (attendance.Result, error)
}

// Scheduler manages timetable entries.
type Scheduler interface {
	Create(ctx context.Context, in schedule.Input) (schedule.Entry, error)
	Update(ctx context.Context, id string, in schedule.Input) (schedule.Entry, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the attendance and timetable endpoints.
type Handler struct {
	scanner   Scanner
	schedules Scheduler
	policies  policy.Source
	log       *zap.Logger
}

// New creates a handler.
func New(scanner Scanner, schedules Scheduler, policies policy.Source, log *zap.Logger) *Handler {
	return &Handler{scanner: scanner, schedules: schedules, policies: policies, log: log}
}

// Register mounts the routes on r. scanGuard protects the scan endpoints and
// adminGuard the timetable endpoints.
func (h *Handler) Register(r gin.IRouter, scanGuard, adminGuard []gin.HandlerFunc) {
	scans := r.Group("", scanGuard...)
	scans.POST("/attendance/scan", h.Scan)
	scans.POST("/yolo/attendance", h.OnSiteScan)

	schedules := r.Group("/schedules", adminGuard...)
	schedules.POST("", h.CreateSchedule)
	schedules.PUT("/:id", h.UpdateSchedule)
	schedules.DELETE("/:id", h.DeleteSchedule)
}

// ---------- Attendance ----------

type scanRequest struct {
	BarcodeID      string `json:"barcode_id"`
	AttendanceType string `json:"attendance_type"`
	JadwalID       string `json:"jadwal_id"`
}

type onSiteRequest struct {
	scanRequest
	Latitude   *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" binding:"omitempty,longitude"`
	StatusCode string   `json:"status_code"`
}

// Scan handles the plain barcode scan.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.scan(c, attendance.ScanRequest{
		BarcodeID:  req.BarcodeID,
		Track:      attendance.Track(req.AttendanceType),
		ScheduleID: req.JadwalID,
		Variant:    attendance.VariantPlain,
	})
}

// OnSiteScan handles the geofenced scan, which may carry an explicit status.
func (h *Handler) OnSiteScan(c *gin.Context) {
	var req onSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.scan(c, attendance.ScanRequest{
		BarcodeID:  req.BarcodeID,
		Track:      attendance.Track(req.AttendanceType),
		ScheduleID: req.JadwalID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		StatusCode: req.StatusCode,
		Variant:    attendance.VariantOnSite,
	})
}

func (h *Handler) scan(c *gin.Context, req attendance.ScanRequest) {
	ctx := c.Request.Context()
	p, err := h.policies.Snapshot(ctx)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	res, err := h.scanner.Scan(ctx, p, req)
	if err != nil {
		h.jsonError(c, err)
		return
	}

	msg := "lesson attendance recorded"
	switch res.Action {
	case attendance.ActionCheckIn:
		msg = "checked in"
	case attendance.ActionCheckOut:
		msg = "checked out"
	}
	jsonOK(c, http.StatusOK, msg, res)
}

// ---------- Timetable ----------

type scheduleRequest struct {
	ClassID   string `json:"kelas_id" binding:"required,uuid"`
	SubjectID string `json:"mata_pelajaran_id" binding:"required,uuid"`
	TeacherID string `json:"guru_id" binding:"required,uuid"`
	Day       string `json:"hari" binding:"required,weekday"`
	Start     string `json:"jam_mulai" binding:"required,clock"`
	End       string `json:"jam_selesai" binding:"required,clock"`
}

func (r scheduleRequest) input() (schedule.Input, error) {
	day, err := schedule.ParseWeekday(r.Day)
	if err != nil {
		return schedule.Input{}, schedule.ErrInvalidWeekday
	}
	start, err := schedule.ParseClock(r.Start)
	if err != nil {
		return schedule.Input{}, err
	}
	end, err := schedule.ParseClock(r.End)
	if err != nil {
		return schedule.Input{}, err
	}
	return schedule.Input{
		ClassID:   r.ClassID,
		SubjectID: r.SubjectID,
		TeacherID: r.TeacherID,
		Weekday:   day,
		Start:     start,
		End:       end,
	}, nil
}

func (h *Handler) bindSchedule(c *gin.Context) (schedule.Input, bool) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return schedule.Input{}, false
	}
	in, err := req.input()
	if err != nil {
		h.jsonError(c, apperr.Validation("invalid_schedule", "%v", err))
		return schedule.Input{}, false
	}
	return in, true
}

// CreateSchedule adds a timetable entry.
func (h *Handler) CreateSchedule(c *gin.Context) {
	in, ok := h.bindSchedule(c)
	if !ok {
		return
	}
	entry, err := h.schedules.Create(c.Request.Context(), in)
	if err != nil {
		h.scheduleError(c, err)
		return
	}
	jsonOK(c, http.StatusCreated, "schedule created", entry)
}

// UpdateSchedule replaces a timetable entry.
func (h *Handler) UpdateSchedule(c *gin.Context) {
	in, ok := h.bindSchedule(c)
	if !ok {
		return
	}
	entry, err := h.schedules.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.scheduleError(c, err)
		return
	}
	jsonOK(c, http.StatusOK, "schedule updated", entry)
}

// DeleteSchedule removes an unreferenced timetable entry.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.jsonError(c, err)
		return
	}
	jsonOK(c, http.StatusOK, "schedule deleted", nil)
}

type conflictDetail struct {
	Axis          schedule.Axis  `json:"axis"`
	ConflictsWith schedule.Entry `json:"conflicts_with"`
}

// scheduleError adds the conflicting entry to conflict responses.
func (h *Handler) scheduleError(c *gin.Context, err error) {
	var ce *schedule.ConflictError
	if errors.As(err, &ce) {
		c.JSON(http.StatusConflict, response{
			Success: false,
			Message: ce.Error(),
			Code:    apperr.CodeOf(ce),
			Data:    conflictDetail{Axis: ce.Axis, ConflictsWith: ce.With},
		})
		return
	}
	h.jsonError(c, err)
}
