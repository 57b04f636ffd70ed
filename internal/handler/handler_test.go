package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"absensi/internal/attendance"
	"absensi/internal/policy"
	"absensi/internal/schedule"
)

type fakeScanner struct {
	got    attendance.ScanRequest
	policy policy.Policy
	res    attendance.Result
	err    error
}

func (f *fakeScanner) Scan(_ context.Context, p policy.Policy, req attendance.ScanRequest) (attendance.Result, error) {
	f.got, f.policy = req, p
	return f.res, f.err
}

type fakeScheduler struct {
	in  schedule.Input
	id  string
	err error
}

func (f *fakeScheduler) entry(id string) (schedule.Entry, error) {
	if f.err != nil {
		return schedule.Entry{}, f.err
	}
	return schedule.Entry{
		ID:        id,
		ClassID:   f.in.ClassID,
		SubjectID: f.in.SubjectID,
		TeacherID: f.in.TeacherID,
		Weekday:   f.in.Weekday,
		Start:     f.in.Start,
		End:       f.in.End,
	}, nil
}

func (f *fakeScheduler) Create(_ context.Context, in schedule.Input) (schedule.Entry, error) {
	f.in = in
	return f.entry("e1")
}

func (f *fakeScheduler) Update(_ context.Context, id string, in schedule.Input) (schedule.Entry, error) {
	f.id, f.in = id, in
	return f.entry(id)
}

func (f *fakeScheduler) Delete(_ context.Context, id string) error {
	f.id = id
	return f.err
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context) (policy.Policy, error) {
	return policy.Policy{}, errors.New("settings unavailable")
}

func newRouter(t *testing.T, sc Scanner, sched Scheduler, src policy.Source) *gin.Engine {
	t.Helper()
	require.NoError(t, RegisterValidators())
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(sc, sched, src, zap.NewNop()).Register(r, nil, nil)
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, response) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

const (
	classID   = "11111111-1111-4111-8111-111111111111"
	subjectID = "22222222-2222-4222-8222-222222222222"
	teacherID = "33333333-3333-4333-8333-333333333333"
)

func TestPlainScan(t *testing.T) {
	sc := &fakeScanner{res: attendance.Result{Track: attendance.TrackSchool, Action: attendance.ActionCheckIn}}
	p := policy.Default()
	p.GeofenceEnabled = true
	r := newRouter(t, sc, &fakeScheduler{}, policy.Static(p))

	w, resp := do(r, http.MethodPost, "/attendance/scan", `{"barcode_id":"BC-001","attendance_type":"sekolah","status_code":"sakit","latitude":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "checked in", resp.Message)

	assert.Equal(t, attendance.VariantPlain, sc.got.Variant)
	assert.Equal(t, attendance.TrackSchool, sc.got.Track)
	assert.Empty(t, sc.got.StatusCode)
	assert.Nil(t, sc.got.Latitude)
	assert.True(t, sc.policy.GeofenceEnabled)
}

func TestOnSiteScan(t *testing.T) {
	sc := &fakeScanner{res: attendance.Result{Track: attendance.TrackLesson, Action: attendance.ActionLesson}}
	r := newRouter(t, sc, &fakeScheduler{}, policy.Static(policy.Default()))

	w, resp := do(r, http.MethodPost, "/yolo/attendance",
		`{"barcode_id":"BC-001","attendance_type":"kelas","jadwal_id":"abc","latitude":-6.2,"longitude":106.8,"status_code":"izin"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lesson attendance recorded", resp.Message)
	assert.Equal(t, attendance.VariantOnSite, sc.got.Variant)
	assert.Equal(t, "abc", sc.got.ScheduleID)
	assert.Equal(t, "izin", sc.got.StatusCode)
	require.NotNil(t, sc.got.Latitude)
	assert.Equal(t, -6.2, *sc.got.Latitude)
}

func TestOnSiteScanRejectsBadCoordinates(t *testing.T) {
	r := newRouter(t, &fakeScanner{}, &fakeScheduler{}, policy.Static(policy.Default()))

	w, resp := do(r, http.MethodPost, "/yolo/attendance", `{"barcode_id":"BC-001","attendance_type":"sekolah","latitude":123,"longitude":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Equal(t, "latitude", resp.Errors["latitude"])
}

func TestScanErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", attendance.ErrMissingBarcode, http.StatusBadRequest, "missing_barcode"},
		{"not found", attendance.ErrStudentNotFound, http.StatusNotFound, "student_not_found"},
		{"conflict", attendance.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
		{"geofence", attendance.ErrGeofenceRejected, http.StatusForbidden, "geofence_rejected"},
		{"hours", policy.ErrOutsideAllowedHours, http.StatusForbidden, "outside_allowed_hours"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, &fakeScanner{err: tt.err}, &fakeScheduler{}, policy.Static(policy.Default()))
			w, resp := do(r, http.MethodPost, "/attendance/scan", `{"barcode_id":"BC-001","attendance_type":"sekolah"}`)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			if tt.code == "internal" {
				assert.Equal(t, "internal server error", resp.Message)
			}
		})
	}
}

func TestScanPolicyUnavailable(t *testing.T) {
	sc := &fakeScanner{}
	r := newRouter(t, sc, &fakeScheduler{}, failingSource{})
	w, _ := do(r, http.MethodPost, "/attendance/scan", `{"barcode_id":"BC-001","attendance_type":"sekolah"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, sc.got.BarcodeID)
}

func TestScanMalformedBody(t *testing.T) {
	r := newRouter(t, &fakeScanner{}, &fakeScheduler{}, policy.Static(policy.Default()))
	w, resp := do(r, http.MethodPost, "/attendance/scan", `{"barcode_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", resp.Code)
}

func scheduleBody(day, start, end string) string {
	b, _ := json.Marshal(map[string]string{
		"kelas_id":          classID,
		"mata_pelajaran_id": subjectID,
		"guru_id":           teacherID,
		"hari":              day,
		"jam_mulai":         start,
		"jam_selesai":       end,
	})
	return string(b)
}

func TestCreateSchedule(t *testing.T) {
	sched := &fakeScheduler{}
	r := newRouter(t, &fakeScanner{}, sched, policy.Static(policy.Default()))

	w, resp := do(r, http.MethodPost, "/schedules", scheduleBody("Senin", "08:00", "09:30:00"))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, w.Body.String(), `"hari":"senin"`)
	assert.Contains(t, w.Body.String(), `"jam_selesai":"09:30"`)
	assert.Equal(t, schedule.Monday, sched.in.Weekday)
	assert.Equal(t, 8*60, sched.in.Start.Minutes())
	assert.Equal(t, 9*60+30, sched.in.End.Minutes())
	assert.Equal(t, classID, sched.in.ClassID)
}

func TestCreateScheduleValidation(t *testing.T) {
	r := newRouter(t, &fakeScanner{}, &fakeScheduler{}, policy.Static(policy.Default()))

	w, resp := do(r, http.MethodPost, "/schedules", scheduleBody("minggu", "8am", "09:00"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "weekday", resp.Errors["hari"])
	assert.Equal(t, "clock", resp.Errors["jam_mulai"])
	assert.NotContains(t, resp.Errors, "jam_selesai")
}

func TestCreateScheduleConflict(t *testing.T) {
	start, _ := schedule.ParseClock("08:00")
	end, _ := schedule.ParseClock("09:00")
	existing := schedule.Entry{ID: "e-a", ClassID: classID, TeacherID: teacherID, Weekday: schedule.Monday, Start: start, End: end}
	candidate := schedule.Candidate{ClassID: classID, TeacherID: "other", Weekday: schedule.Monday, Start: start + 30, End: end + 30}
	conflict := schedule.Detect(candidate, []schedule.Entry{existing}, "")
	require.Error(t, conflict)

	r := newRouter(t, &fakeScanner{}, &fakeScheduler{err: conflict}, policy.Static(policy.Default()))
	w, _ := do(r, http.MethodPost, "/schedules", scheduleBody("senin", "08:30", "09:30"))
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Code string `json:"code"`
		Data struct {
			Axis          string `json:"axis"`
			ConflictsWith struct {
				ID string `json:"id"`
			} `json:"conflicts_with"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "class_conflict", body.Code)
	assert.Equal(t, "class", body.Data.Axis)
	assert.Equal(t, "e-a", body.Data.ConflictsWith.ID)
}

func TestUpdateAndDeleteSchedule(t *testing.T) {
	sched := &fakeScheduler{}
	r := newRouter(t, &fakeScanner{}, sched, policy.Static(policy.Default()))

	w, _ := do(r, http.MethodPut, "/schedules/e1", scheduleBody("2", "10:00", "11:00"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "e1", sched.id)
	assert.Equal(t, schedule.Tuesday, sched.in.Weekday)

	sched.err = schedule.ErrInUse
	w, resp := do(r, http.MethodDelete, "/schedules/e2", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "schedule_in_use", resp.Code)
	assert.Equal(t, "e2", sched.id)

	sched.err = schedule.ErrNotFound
	w, _ = do(r, http.MethodPut, "/schedules/e3", scheduleBody("2", "10:00", "11:00"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
