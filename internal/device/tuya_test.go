package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/homesense-core/internal/state"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type recordingSink struct {
	mu        sync.Mutex
	positions []int
	tags      []string
}

func (r *recordingSink) SetCurtainPosition(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, p)
}

func (r *recordingSink) SetCurtainError(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
}

// fakeTuya is a minimal Tuya OpenAPI server.
type fakeTuya struct {
	mu          sync.Mutex
	tokenCalls  int
	values      []int
	reject      bool
	failStatus  int
	lastHeaders http.Header
}

func (f *fakeTuya) handler() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/v1.0/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"access_token": "tok-123", "expire_time": 7200},
		})
	})
	mux.Post("/v1.0/devices/{id}/commands", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastHeaders = r.Header.Clone()
		if f.failStatus != 0 {
			w.WriteHeader(f.failStatus)
			return
		}
		var body struct {
			Commands []struct {
				Code  string `json:"code"`
				Value int    `json:"value"`
			} `json:"commands"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, c := range body.Commands {
			f.values = append(f.values, c.Value)
		}
		if f.reject {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 2008, "msg": "command or value not support"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "result": true})
	})
	return mux
}

func newTestTuya(t *testing.T, f *fakeTuya, sink CurtainStateSink) *TuyaCurtain {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c := NewTuyaCurtain(TuyaConfig{
		Endpoint:  srv.URL,
		AccessID:  "id",
		AccessKey: "secret",
		DeviceID:  "dev1",
	}, sink)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestTuyaCurtain_InvertsPolarity(t *testing.T) {
	for _, percent := range []int{0, 25, 50, 75, 100} {
		f := &fakeTuya{}
		sink := &recordingSink{}
		c := newTestTuya(t, f, sink)

		require.NoError(t, c.SetPercent(context.Background(), percent))

		assert.Equal(t, []int{100 - percent}, f.values, "percent %d", percent)
		assert.Equal(t, []int{percent}, sink.positions, "percent %d", percent)
	}
}

func TestTuyaCurtain_RequestIsSigned(t *testing.T) {
	f := &fakeTuya{}
	c := newTestTuya(t, f, nil)

	require.NoError(t, c.SetPercent(context.Background(), 50))

	assert.Equal(t, "id", f.lastHeaders.Get("client_id"))
	assert.Equal(t, "tok-123", f.lastHeaders.Get("access_token"))
	assert.Equal(t, "HMAC-SHA256", f.lastHeaders.Get("sign_method"))
	assert.Len(t, f.lastHeaders.Get("sign"), 64)
	assert.NotEmpty(t, f.lastHeaders.Get("t"))
}

func TestTuyaCurtain_Rejected(t *testing.T) {
	f := &fakeTuya{reject: true}
	sink := &recordingSink{}
	c := newTestTuya(t, f, sink)

	err := c.SetPercent(context.Background(), 25)

	require.ErrorIs(t, err, ErrCommandRejected)
	assert.Empty(t, sink.positions)
	assert.Equal(t, []string{state.TagCmdFail}, sink.tags)
}

func TestTuyaCurtain_TransportFailure(t *testing.T) {
	f := &fakeTuya{failStatus: http.StatusBadGateway}
	sink := &recordingSink{}
	c := newTestTuya(t, f, sink)

	err := c.SetPercent(context.Background(), 25)

	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, []string{state.TagException}, sink.tags)
}

func TestTuyaCurtain_InvalidPercent(t *testing.T) {
	c := NewTuyaCurtain(TuyaConfig{}, nil)
	assert.ErrorIs(t, c.SetPercent(context.Background(), 101), ErrInvalidPercent)
}

func TestTuyaCurtain_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1004, "msg": "sign invalid"})
	}))
	defer srv.Close()

	c := NewTuyaCurtain(TuyaConfig{Endpoint: srv.URL}, nil)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAuth)
}

func TestTuyaCurtain_RefreshesExpiredToken(t *testing.T) {
	f := &fakeTuya{}
	c := newTestTuya(t, f, nil)

	now := time.Now()
	c.now = func() time.Time { return now.Add(3 * time.Hour) }

	require.NoError(t, c.SetPercent(context.Background(), 0))
	assert.Equal(t, 2, f.tokenCalls)
}

func TestTuyaCurtain_SignIsDeterministic(t *testing.T) {
	c := NewTuyaCurtain(TuyaConfig{AccessID: "id", AccessKey: "secret"}, nil)

	a := c.sign("GET", tuyaTokenPath, nil, "", "1700000000000")
	b := c.sign("GET", tuyaTokenPath, nil, "", "1700000000000")
	other := c.sign("GET", tuyaTokenPath, nil, "", "1700000000001")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
	assert.Regexp(t, "^[0-9A-F]{64}$", a)
}
