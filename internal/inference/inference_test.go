package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/homesense-core/internal/state"
)

func ptr(v float64) *float64 { return &v }

func fullTelemetry() state.Telemetry {
	return state.Telemetry{
		LocalTempC:           ptr(24.46),
		LocalHumidityPercent: ptr(51.04),
		LocalPressureHPa:     ptr(1006.53),
		LocalLightLux:        ptr(312.5),
		HubTempC:             ptr(21.8),
		HubHumidityPercent:   ptr(60),
		HubLightLevel:        ptr(9),
	}
}

func TestFeaturesFrom(t *testing.T) {
	now := time.Date(2026, 7, 14, 16, 5, 0, 0, time.Local)

	f, ok := FeaturesFrom(fullTelemetry(), now)
	require.True(t, ok)
	assert.Equal(t, Features{
		Hour:                 16,
		Month:                7,
		LocalTempC:           24.5,
		LocalHumidityPercent: 51,
		LocalPressureHPa:     1006.5,
		LocalLightLux:        312.5,
		HubTempC:             21.8,
		HubHumidityPercent:   60,
		HubLightLevel:        9,
	}, f)
}

func TestFeaturesFromRequiresEverySensor(t *testing.T) {
	tel := fullTelemetry()
	tel.HubLightLevel = nil
	_, ok := FeaturesFrom(tel, time.Now())
	assert.False(t, ok)

	tel = fullTelemetry()
	tel.LocalLightLux = nil
	_, ok = FeaturesFrom(tel, time.Now())
	assert.False(t, ok)
}

func TestTrainingSampleTempDiff(t *testing.T) {
	f, ok := FeaturesFrom(fullTelemetry(), time.Now())
	require.True(t, ok)
	at := time.Date(2026, 7, 14, 16, 5, 9, 0, time.Local)

	s := NewTrainingSample(f, at, 75)
	assert.Equal(t, 2.7, s.TempDiff)
	assert.Equal(t, "2026-07-14 16:05:09", s.Timestamp)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, 24.5, flat["local_temp_c"])
	assert.Equal(t, float64(75), flat["tuya_curtain_percent"])
	assert.Equal(t, 2.7, flat["temp_diff"])
	assert.Len(t, flat, 12)
}

func TestPredict(t *testing.T) {
	var got Features
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"predicted_label": 3}`))
	}))
	defer srv.Close()

	f := Features{Hour: 8, Month: 1, LocalTempC: 18.2}
	label, err := NewClient(srv.URL+"/").Predict(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 3, label)
	assert.Equal(t, f, got)
}

func TestPredictMissingLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": "model not trained"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Predict(context.Background(), Features{})
	assert.ErrorIs(t, err, ErrNoPrediction)
}

func TestPredictBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Predict(context.Background(), Features{})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestPing(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	assert.NoError(t, c.Ping(context.Background()))

	status.Store(http.StatusInternalServerError)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrUnreachable)
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.ErrorIs(t, NewClient(url).Ping(context.Background()), ErrUnreachable)
}

func TestAddTrainingData(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).AddTrainingData(context.Background(), TrainingSample{TuyaCurtainPercent: 50})
	require.NoError(t, err)
	assert.Equal(t, "/add_training_data", path)
}
