package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homesense-core/internal/audit"
	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/infrastructure/config"
	"github.com/nerrad567/homesense-core/internal/state"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type call struct {
	op     string
	arg    any
	source string
	ip     string
}

type mockController struct {
	mu       sync.Mutex
	calls    []call
	scenes   map[automation.SceneID]bool
	powerErr error
}

func (m *mockController) record(c call) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *mockController) Manual(_ context.Context, id automation.SceneID, source, ip string) error {
	if !m.scenes[id] {
		return fmt.Errorf("%w: %q", automation.ErrSceneNotFound, id)
	}
	m.record(call{"manual", id, source, ip})
	return nil
}

func (m *mockController) SetMode(_ context.Context, mode state.Mode, source, ip string) {
	m.record(call{"mode", mode, source, ip})
}

func (m *mockController) SetLogging(_ context.Context, paused bool, source, ip string) {
	m.record(call{"logging", paused, source, ip})
}

func (m *mockController) Projector(_ context.Context, on bool, source, ip string) error {
	m.record(call{"projector", on, source, ip})
	return m.powerErr
}

func (m *mockController) HDMI(_ context.Context, port int, source, ip string) error {
	m.record(call{"hdmi", port, source, ip})
	return nil
}

func (m *mockController) last() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return call{}
	}
	return m.calls[len(m.calls)-1]
}

type mockBeeper struct{ beeps int }

func (m *mockBeeper) Beep(context.Context) { m.beeps++ }

type mockRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *mockRecorder) Record(_ context.Context, source, actionType, details, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, audit.Entry{Source: source, ActionType: actionType, Details: details, IPAddress: ip})
}

type mockAuditLog struct {
	filter audit.Filter
	err    error
}

func (m *mockAuditLog) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	m.filter = filter
	if m.err != nil {
		return nil, m.err
	}
	return &audit.ListResult{
		Entries: []audit.Entry{{Source: audit.SourceKeypad, ActionType: audit.ActionScene, Details: "scene 'set0' executed"}},
		Total:   1,
		Limit:   50,
	}, nil
}

type fakeHistory struct {
	since time.Time
	rows  []state.Telemetry
	err   error
}

func (f *fakeHistory) List(_ context.Context, since time.Time, _ int) ([]state.Telemetry, error) {
	f.since = since
	return f.rows, f.err
}

var errCameraStopped = errors.New("camera stopped")

// fakeCamera yields its frames in order, then reports the camera stopped.
type fakeCamera struct {
	frames [][]byte
}

func (f *fakeCamera) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if int(after) >= len(f.frames) {
		return nil, 0, errCameraStopped
	}
	return f.frames[after], after + 1, nil
}

func (f *fakeCamera) FrameInterval() time.Duration { return 0 }

// ─── Helpers ────────────────────────────────────────────────────────

type testDeps struct {
	store    *state.Store
	control  *mockController
	beeper   *mockBeeper
	recorder *mockRecorder
	auditLog *mockAuditLog
	history  *fakeHistory
}

func testServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()

	d := &testDeps{
		store: state.New(),
		control: &mockController{scenes: map[automation.SceneID]bool{
			"set0": true, "set1": true,
		}},
		beeper:   &mockBeeper{},
		recorder: &mockRecorder{},
		auditLog: &mockAuditLog{},
		history:  &fakeHistory{},
	}

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		State:    d.store,
		Control:  d.control,
		Beeper:   d.beeper,
		AuditLog: d.auditLog,
		Audit:    d.recorder,
		History:  d.history,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, nil)
	go srv.hub.Run(ctx)

	return srv, d
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

// ─── Construction Tests ─────────────────────────────────────────────

func TestNew_RequiresStateAndController(t *testing.T) {
	if _, err := New(Deps{Control: &mockController{}}); err == nil {
		t.Error("expected error without state store")
	}
	if _, err := New(Deps{State: state.New()}); err == nil {
		t.Error("expected error without controller")
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("expected error before Start")
	}
}

// ─── Health & Middleware Tests ──────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv, http.MethodGet, "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv, http.MethodGet, "/health")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/mode/auto", nil)
	req.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[::1]:5000", "::1"},
		{"pipe", "pipe"},
		{"", audit.NoIP},
	}
	for _, tt := range tests {
		r := &http.Request{RemoteAddr: tt.remote}
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

// ─── Read Endpoint Tests ────────────────────────────────────────────

func TestStatus_Startup(t *testing.T) {
	srv, _ := testServer(t)
	resp := decode(t, do(t, srv, http.MethodGet, "/status"))

	if resp["curtain_position"] != state.TagNotAvailable {
		t.Errorf("curtain_position = %v, want N/A", resp["curtain_position"])
	}
	if resp["projector_status"] != string(state.PowerUnknown) {
		t.Errorf("projector_status = %v", resp["projector_status"])
	}
	if resp["hdmi_status"] != hdmiHidden {
		t.Errorf("hdmi_status = %v, want ---", resp["hdmi_status"])
	}
	if resp["logging_paused"] != true {
		t.Errorf("logging_paused = %v, want true", resp["logging_paused"])
	}
	if resp["auto_mode"] != false {
		t.Errorf("auto_mode = %v, want false", resp["auto_mode"])
	}
	if resp["ai_connection_status"] != false {
		t.Errorf("ai_connection_status = %v, want false", resp["ai_connection_status"])
	}
}

func TestStatus_HDMIShownWhenProjectorOn(t *testing.T) {
	srv, d := testServer(t)
	d.store.SetHDMIInput(state.HDMI2)
	d.store.SetCurtainPosition(40)

	resp := decode(t, do(t, srv, http.MethodGet, "/status"))
	if resp["hdmi_status"] != hdmiHidden {
		t.Errorf("hdmi_status = %v, want --- while projector is not on", resp["hdmi_status"])
	}
	if resp["curtain_position"] != float64(40) {
		t.Errorf("curtain_position = %v, want 40", resp["curtain_position"])
	}

	d.store.SetProjectorPower(state.PowerOn)
	resp = decode(t, do(t, srv, http.MethodGet, "/status"))
	if resp["hdmi_status"] != string(state.HDMI2) {
		t.Errorf("hdmi_status = %v, want HDMI 2", resp["hdmi_status"])
	}
}

func TestStatus_CurtainErrorTag(t *testing.T) {
	srv, d := testServer(t)
	d.store.SetCurtainError(state.TagCmdFail)

	resp := decode(t, do(t, srv, http.MethodGet, "/status"))
	if resp["curtain_position"] != state.TagCmdFail {
		t.Errorf("curtain_position = %v, want CmdFail", resp["curtain_position"])
	}
}

func TestSensorData_NoData(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv, http.MethodGet, "/api/sensor_data")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decode(t, w); resp["error"] != "No data available yet." {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestSensorData_FieldNames(t *testing.T) {
	srv, d := testServer(t)
	temp, hubTemp, lux := 21.5, 24.0, 312.0
	curtain := 75
	d.store.SetTelemetry(state.Telemetry{
		Timestamp:      time.Now(),
		LocalTempC:     &temp,
		HubTempC:       &hubTemp,
		HubLightLevel:  &lux,
		CurtainPercent: &curtain,
	})

	w := do(t, srv, http.MethodGet, "/api/sensor_data")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode(t, w)

	want := map[string]any{
		"outdoor_temp":       21.5,
		"indoor_temp":        24.0,
		"window_light_level": 312.0,
		"curtain_position":   float64(75),
		"outdoor_humidity":   nil,
		"outdoor_pressure":   nil,
		"outdoor_light":      nil,
		"indoor_humidity":    nil,
	}
	for k, v := range want {
		got, ok := resp[k]
		if !ok {
			t.Errorf("missing field %q", k)
			continue
		}
		if got != v {
			t.Errorf("%s = %v, want %v", k, got, v)
		}
	}
}

func TestWeather(t *testing.T) {
	srv, d := testServer(t)

	resp := decode(t, do(t, srv, http.MethodGet, "/api/weather"))
	if resp["weather"] != state.DefaultWeather.Text {
		t.Errorf("weather = %v, want default", resp["weather"])
	}

	d.store.SetWeather(state.Weather{Text: "晴れ", High: "25", Low: "14", UpdatedAt: time.Now()})
	resp = decode(t, do(t, srv, http.MethodGet, "/api/weather"))
	if resp["weather"] != "晴れ" || resp["high"] != "25" || resp["low"] != "14" {
		t.Errorf("weather = %v", resp)
	}
}

func TestListAuditLogs_Filters(t *testing.T) {
	srv, d := testServer(t)
	w := do(t, srv, http.MethodGet, "/log?source=Keypad&action_type=scene&limit=10&offset=5")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	f := d.auditLog.filter
	if f.Source != audit.SourceKeypad || f.ActionType != audit.ActionScene || f.Limit != 10 || f.Offset != 5 {
		t.Errorf("filter = %+v", f)
	}
	if resp := decode(t, w); resp["total"] != float64(1) {
		t.Errorf("total = %v, want 1", resp["total"])
	}
}

func TestListAuditLogs_Error(t *testing.T) {
	srv, d := testServer(t)
	d.auditLog.err = errors.New("disk gone")

	if w := do(t, srv, http.MethodGet, "/log"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestListAuditLogs_NotConfigured(t *testing.T) {
	srv, _ := testServer(t)
	srv.auditLog = nil

	if w := do(t, srv, http.MethodGet, "/log"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── Panel Tests ────────────────────────────────────────────────────

func TestIndex_AuditsFirstConnectionPerIP(t *testing.T) {
	srv, d := testServer(t)
	router := srv.buildRouter()

	for _, remote := range []string{"192.0.2.1:1000", "192.0.2.1:1001", "192.0.2.2:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("GET / status = %d, want 200", w.Code)
		}
	}

	if len(d.recorder.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(d.recorder.entries))
	}
	e := d.recorder.entries[0]
	if e.Source != audit.SourceWeb || e.ActionType != audit.ActionConnection || e.IPAddress != "192.0.2.1" {
		t.Errorf("entry = %+v", e)
	}
	if d.recorder.entries[1].IPAddress != "192.0.2.2" {
		t.Errorf("second entry ip = %q", d.recorder.entries[1].IPAddress)
	}
}

func TestPanelAssets(t *testing.T) {
	srv, d := testServer(t)
	w := do(t, srv, http.MethodGet, "/script.js")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(d.recorder.entries) != 0 {
		t.Error("asset requests should not be audited")
	}
}

// ─── Control Endpoint Tests ─────────────────────────────────────────

func TestCommand_Success(t *testing.T) {
	srv, d := testServer(t)
	w := do(t, srv, http.MethodPost, "/command/set1")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != "success" || resp["message"] != "Scene set1 activated." {
		t.Errorf("resp = %v", resp)
	}

	c := d.control.last()
	if c.op != "manual" || c.arg != automation.SceneID("set1") || c.source != audit.SourceWeb || c.ip != "192.0.2.1" {
		t.Errorf("call = %+v", c)
	}
	if d.beeper.beeps != 1 {
		t.Errorf("beeps = %d, want 1", d.beeper.beeps)
	}
}

func TestCommand_UnknownSceneStillReportsSuccess(t *testing.T) {
	srv, d := testServer(t)
	w := do(t, srv, http.MethodPost, "/command/nosuch")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != "success" || resp["message"] != "Scene nosuch activated." {
		t.Errorf("resp = %v", resp)
	}
	if c := d.control.last(); c.op == "manual" {
		t.Errorf("unknown scene was queued: %+v", c)
	}
	if d.beeper.beeps != 1 {
		t.Errorf("beeps = %d, want 1", d.beeper.beeps)
	}
}

func TestCommand_GetNotAllowed(t *testing.T) {
	srv, _ := testServer(t)
	if w := do(t, srv, http.MethodGet, "/command/set0"); w.Code == http.StatusOK {
		t.Error("GET /command should not trigger a scene")
	}
}

func TestLogging(t *testing.T) {
	tests := []struct {
		action     string
		wantCode   int
		wantPaused any
	}{
		{"on", http.StatusOK, false},
		{"OFF", http.StatusOK, true},
		{"maybe", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			srv, d := testServer(t)
			w := do(t, srv, http.MethodPost, "/logging/"+tt.action)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			resp := decode(t, w)
			if tt.wantCode != http.StatusOK {
				if resp["status"] != "error" || resp["message"] != "Invalid action" {
					t.Errorf("resp = %v", resp)
				}
				if c := d.control.last(); c.op != "" {
					t.Errorf("unexpected call %+v", c)
				}
				return
			}
			if resp["logging_paused"] != tt.wantPaused {
				t.Errorf("logging_paused = %v, want %v", resp["logging_paused"], tt.wantPaused)
			}
			if c := d.control.last(); c.op != "logging" || c.arg != tt.wantPaused {
				t.Errorf("call = %+v", c)
			}
		})
	}
}

func TestMode(t *testing.T) {
	srv, d := testServer(t)

	resp := decode(t, do(t, srv, http.MethodPost, "/mode/auto"))
	if resp["status"] != "success" || resp["auto_mode"] != true {
		t.Errorf("resp = %v", resp)
	}
	if c := d.control.last(); c.op != "mode" || c.arg != state.ModeAuto {
		t.Errorf("call = %+v", c)
	}

	resp = decode(t, do(t, srv, http.MethodPost, "/mode/manual"))
	if resp["auto_mode"] != false {
		t.Errorf("auto_mode = %v, want false", resp["auto_mode"])
	}

	if w := do(t, srv, http.MethodPost, "/mode/turbo"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestProjector(t *testing.T) {
	srv, d := testServer(t)

	if w := do(t, srv, http.MethodPost, "/projector/on"); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if c := d.control.last(); c.op != "projector" || c.arg != true {
		t.Errorf("call = %+v", c)
	}

	d.control.powerErr = errors.New("cec gone")
	if w := do(t, srv, http.MethodPost, "/projector/off"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}

	if w := do(t, srv, http.MethodPost, "/projector/toggle"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHDMI(t *testing.T) {
	srv, d := testServer(t)

	if w := do(t, srv, http.MethodPost, "/hdmi/hdmi2"); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if c := d.control.last(); c.op != "hdmi" || c.arg != 2 {
		t.Errorf("call = %+v", c)
	}

	w := do(t, srv, http.MethodPost, "/hdmi/hdmi3")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decode(t, w); resp["message"] != "Invalid port" {
		t.Errorf("message = %v, want Invalid port", resp["message"])
	}
}

// ─── Video Feed Tests ───────────────────────────────────────────────

func TestVideoFeed_NoCamera(t *testing.T) {
	srv, _ := testServer(t)
	if w := do(t, srv, http.MethodGet, "/video_feed"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestVideoFeed_StreamsFrames(t *testing.T) {
	srv, _ := testServer(t)
	srv.camera = &fakeCamera{frames: [][]byte{
		{0xFF, 0xD8, 'a', 0xFF, 0xD9},
		{0xFF, 0xD8, 'b', 0xFF, 0xD9},
	}}

	w := do(t, srv, http.MethodGet, "/video_feed")

	if ct := w.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if n := strings.Count(body, "--frame\r\nContent-Type: image/jpeg\r\n"); n != 2 {
		t.Errorf("frame parts = %d, want 2", n)
	}
	if !strings.Contains(body, "\xFF\xD8a\xFF\xD9\r\n") || !strings.Contains(body, "\xFF\xD8b\xFF\xD9\r\n") {
		t.Error("frames missing from body")
	}
}

// ─── Telemetry Export Tests ─────────────────────────────────────────

func TestTelemetryCSV(t *testing.T) {
	srv, d := testServer(t)
	temp, curtain := 21.456, 40
	d.history.rows = []state.Telemetry{{
		Timestamp:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local),
		LocalTempC:     &temp,
		CurtainPercent: &curtain,
	}}

	w := do(t, srv, http.MethodGet, "/api/telemetry.csv?hours=2")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 row: %q", len(lines), w.Body.String())
	}
	if !strings.Contains(lines[1], "21.46") || !strings.HasSuffix(strings.TrimSpace(lines[1]), ",40") {
		t.Errorf("row = %q", lines[1])
	}
	if age := time.Since(d.history.since); age < 2*time.Hour-time.Minute || age > 2*time.Hour+time.Minute {
		t.Errorf("since = %v ago, want about 2h", age)
	}
}

func TestTelemetryCSV_BadHours(t *testing.T) {
	srv, _ := testServer(t)
	if w := do(t, srv, http.MethodGet, "/api/telemetry.csv?hours=-1"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTelemetryCSV_StoreError(t *testing.T) {
	srv, d := testServer(t)
	d.history.err = errors.New("disk full")
	if w := do(t, srv, http.MethodGet, "/api/telemetry.csv"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── WebSocket Tests ────────────────────────────────────────────────

func TestWebSocket_StateBroadcast(t *testing.T) {
	srv, d := testServer(t)
	d.store.Subscribe(srv.hub.StateObserver())

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelStateChanged}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Fatalf("ack = %+v", ack)
	}

	d.store.SetMode(state.ModeAuto)

	var ev struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
		Payload   Status `json:"payload"`
	}
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != WSTypeEvent || ev.EventType != ChannelStateChanged {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Payload.AutoMode {
		t.Error("payload auto_mode = false, want true")
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var pong WSMessage
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong || pong.ID != "p1" {
		t.Errorf("pong = %+v", pong)
	}
}

func TestHub_BroadcastSkipsUnsubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	subscribed := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{ChannelSceneActivated: {}}}
	other := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{}}
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(ChannelSceneActivated, map[string]string{"scene_id": "set0"})

	if len(subscribed.send) != 1 {
		t.Error("subscribed client did not receive broadcast")
	}
	if len(other.send) != 0 {
		t.Error("unsubscribed client received broadcast")
	}
	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount = %d, want 2", hub.ClientCount())
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	slow := &WSClient{hub: hub, send: make(chan []byte), subscriptions: map[string]struct{}{ChannelStateChanged: {}}}
	hub.Register(slow)

	hub.Broadcast(ChannelStateChanged, Status{})

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0 after slow client dropped", hub.ClientCount())
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client send channel not closed")
	}
}

func TestWebSocket_ReplaysLastStateOnSubscribe(t *testing.T) {
	srv, d := testServer(t)
	d.store.Subscribe(srv.hub.StateObserver())
	d.store.SetLoggingPaused(false)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelStateChanged}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack WSMessage
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}

	var ev struct {
		Type    string `json:"type"`
		Payload Status `json:"payload"`
	}
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if ev.Type != WSTypeEvent || ev.Payload.LoggingPaused {
		t.Errorf("replay = %+v, want event with logging_paused=false", ev)
	}
}

func TestWebSocket_UnknownType(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: "launch", ID: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != WSTypeError || resp.ID != "x" {
		t.Errorf("resp = %+v, want error frame", resp)
	}
}
