package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homesense-core/internal/audit"
	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/inference"
	"github.com/nerrad567/homesense-core/internal/state"
)

// autoControl asks the inference service for a curtain label and hands it
// to the arbiter. It does nothing in Manual mode.
func (s *Scheduler) autoControl(ctx context.Context) {
	if !s.deps.State.Snapshot().AutoMode() || s.deps.Collector == nil || s.deps.Arbiter == nil {
		return
	}

	t := s.deps.Collector.Collect(ctx)
	features, ok := inference.FeaturesFrom(t, s.now())
	if !ok {
		s.logger.Info("sensor data incomplete, skipping auto control")
		return
	}

	label, err := s.deps.Inference.Predict(ctx, features)
	if err != nil {
		s.logger.Warn("inference request failed", "error", err)
		return
	}

	exec, err := s.deps.Arbiter.AI(ctx, label)
	switch {
	case errors.Is(err, automation.ErrSceneBusy):
		s.logger.Info("auto control deferred, scene in progress", "label", label)
	case err != nil:
		s.logger.Warn("auto control failed", "label", label, "error", err)
	case exec == nil:
		s.logger.Debug("auto control unchanged", "label", label)
	default:
		s.logger.Info("auto control applied", "scene_id", exec.SceneID, "status", exec.Status)
	}
}

// checkConnectivity pings the inference service and audits transitions.
// The mode LED is redrawn from the current state on every check.
func (s *Scheduler) checkConnectivity(ctx context.Context) {
	err := s.deps.Inference.Ping(ctx)
	connected := err == nil
	changed := s.deps.State.SetAIConnected(connected)
	if s.deps.LEDs != nil {
		s.deps.LEDs.Apply(s.deps.State.Snapshot())
	}
	if !changed {
		return
	}

	details := "AI server connected"
	if !connected {
		details = "AI server disconnected"
		s.logger.Warn("inference service unreachable", "error", err)
	} else {
		s.logger.Info("inference service reachable")
	}
	s.record(ctx, audit.SourceAI, audit.ActionConnection, details)
}

// pollStatus refreshes the projector power state.
func (s *Scheduler) pollStatus(ctx context.Context) {
	s.deps.State.SetProjectorPower(s.deps.Projector.PollPowerWithRetry(ctx))
}

// logTelemetry records a snapshot and, while logging is active, uploads it
// as a training sample. Samples need every sensor value and a numeric
// curtain position.
func (s *Scheduler) logTelemetry(ctx context.Context) {
	t := s.deps.Collector.Collect(ctx)
	if err := s.deps.Telemetry.Record(ctx, t); err != nil {
		s.logger.Warn("telemetry write failed", "error", err)
	}

	if s.deps.Inference == nil || s.deps.State.Snapshot().LoggingPaused {
		return
	}
	if t.CurtainPercent == nil {
		s.logger.Debug("curtain position unknown, skipping training upload")
		return
	}
	features, ok := inference.FeaturesFrom(t, t.Timestamp)
	if !ok {
		s.logger.Debug("sensor data incomplete, skipping training upload")
		return
	}

	sample := inference.NewTrainingSample(features, t.Timestamp, *t.CurtainPercent)
	if err := s.deps.Inference.AddTrainingData(ctx, sample); err != nil {
		s.logger.Warn("training upload failed", "error", err)
		s.record(ctx, audit.SourceSystem, audit.ActionAITraining, fmt.Sprintf("training upload failed: %v", err))
	}
}

// updateWeather fetches the forecast. On failure the defaults are shown.
func (s *Scheduler) updateWeather(ctx context.Context) {
	w, err := s.deps.Weather.Fetch(ctx)
	if err != nil {
		s.logger.Warn("weather fetch failed", "error", err)
		s.deps.State.SetWeather(state.DefaultWeather)
		s.record(ctx, audit.SourceWeather, audit.ActionWeather, fmt.Sprintf("fetch error: %v", err))
		return
	}

	s.deps.State.SetWeather(w)
	s.record(ctx, audit.SourceWeather, audit.ActionWeather, fmt.Sprintf("fetched: %s %s/%s", w.Text, w.High, w.Low))
}

func (s *Scheduler) record(ctx context.Context, source, actionType, details string) {
	if s.deps.Audit != nil {
		s.deps.Audit.Record(ctx, source, actionType, details, "")
	}
}

// inputLoop scans the keypad and refreshes the LCD. A handled key forces
// a refresh on the same tick.
type inputLoop struct {
	s           *Scheduler
	lastRefresh time.Time
	force       bool
}

func newInputLoop(s *Scheduler) *inputLoop {
	return &inputLoop{s: s, force: true}
}

func (l *inputLoop) tick(ctx context.Context) {
	d := l.s.deps

	if d.Keypad != nil && d.Keys != nil {
		key, ok, err := d.Keypad.Scan(ctx)
		switch {
		case err != nil:
			l.s.logger.Debug("keypad scan failed", "error", err)
		case ok:
			handled, err := d.Keys.Handle(ctx, key)
			if err != nil {
				l.s.logger.Warn("keypad command failed", "key", string(key), "error", err)
			}
			if handled {
				l.force = true
			}
		}
	}

	if d.Display == nil {
		return
	}
	now := l.s.now()
	if !l.force && now.Sub(l.lastRefresh) < l.s.iv.DisplayRefresh {
		return
	}
	if err := d.Display.ShowStatus(d.State.Snapshot()); err != nil {
		l.s.logger.Debug("display refresh failed", "error", err)
	}
	l.lastRefresh = now
	l.force = false
}
