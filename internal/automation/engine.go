package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homesense-core/internal/device"
	"github.com/nerrad567/homesense-core/internal/state"
)

const (
	// maxSceneExecutionTime bounds one run; the projection scenes spend
	// most of it in the projector warm-up wait.
	maxSceneExecutionTime = 3 * time.Minute

	// aiPreRoll lets the announcement start before the curtain moves.
	aiPreRoll = 500 * time.Millisecond

	sceneEventTopic = "homesense/event/scene"
	announceFormat  = "Moving the curtain to %d percent"
)

// Projector is the display device a scene can drive.
type Projector interface {
	Power(ctx context.Context, on bool) error
	SwitchInput(ctx context.Context, port int) error
}

// StateWriter receives the state fields a scene touches.
// *state.Store satisfies it.
type StateWriter interface {
	SetProjectorPower(p state.PowerStatus)
	SetHDMIInput(in state.HDMIInput)
	SetLastScene(id string)
}

// Announcer speaks a message without blocking the caller.
type Announcer interface {
	SayAsync(text string)
}

// MQTTClient is the interface for publishing scene events.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Deps are the collaborators of an Engine. MQTT, Hub and Announcer may
// be nil.
type Deps struct {
	Curtains  map[Backend]device.CurtainActuator
	Projector Projector
	State     StateWriter
	MQTT      MQTTClient
	Hub       WSHub
	Announcer Announcer
	Logger    Logger

	// Warmup is the wait between projector power-on and the input switch.
	Warmup time.Duration
}

// Engine executes scenes one at a time.
//
// The gate is a one-slot channel. Holding the slot means a scene is
// Executing; the slot is released on every exit path of Execute.
//
// Thread Safety: Execute is safe for concurrent use.
type Engine struct {
	scenes map[SceneID]Scene
	deps   Deps
	logger Logger
	sleep  SleepFunc
	gate   chan struct{}
}

// NewEngine creates a scene engine.
//
// Parameters:
//   - deps: curtain backends, projector, state store and optional
//     publishers (see Deps)
func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		scenes: buildRegistry(deps.Warmup),
		deps:   deps,
		logger: logger,
		sleep:  device.Sleep,
		gate:   make(chan struct{}, 1),
	}
}

// SetSleep replaces the wait used by Wait actions and the AI pre-roll.
func (e *Engine) SetSleep(fn SleepFunc) {
	e.sleep = fn
}

// Scene returns the compiled-in scene with the given id.
func (e *Engine) Scene(id SceneID) (Scene, bool) {
	s, ok := e.scenes[id]
	return s, ok
}

// Busy reports whether a scene is executing.
func (e *Engine) Busy() bool {
	return len(e.gate) > 0
}

// acquire takes the gate. AI triggers fail fast; manual triggers wait.
func (e *Engine) acquire(ctx context.Context, kind TriggerKind) error {
	if kind == TriggerAI {
		select {
		case e.gate <- struct{}{}:
			return nil
		default:
			return ErrSceneBusy
		}
	}
	select {
	case e.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scene gate: %w", ctx.Err())
	}
}

func (e *Engine) release() {
	<-e.gate
}

// Execute runs a scene to completion.
//
// Parameters:
//   - ctx: Context for cancellation; Wait actions return early when it is done
//   - id: The scene to run
//   - trigger: Who asked for it
//
// Returns:
//   - *Execution: the run record (status completed, partial or cancelled)
//   - error: nil once the scene has run, or:
//   - ErrSceneNotFound if id is not compiled in
//   - ErrSceneBusy if trigger is AI and another scene is executing
//   - ctx.Err() wrapped if a manual trigger gave up waiting for the gate
func (e *Engine) Execute(ctx context.Context, id SceneID, trigger Trigger) (*Execution, error) {
	scene, ok := e.scenes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	return e.run(ctx, scene, trigger)
}

// run executes scene behind the gate. It also serves the one-off scenes
// the arbiter builds for direct projector control.
func (e *Engine) run(ctx context.Context, scene Scene, trigger Trigger) (*Execution, error) {
	id := scene.ID
	if err := e.acquire(ctx, trigger.Kind); err != nil {
		return nil, err
	}
	defer e.release()

	ctx, cancel := context.WithTimeout(ctx, maxSceneExecutionTime)
	defer cancel()

	exec := &Execution{
		ID:           GenerateID(),
		SceneID:      id,
		Trigger:      trigger,
		StartedAt:    time.Now().UTC(),
		Status:       StatusRunning,
		ActionsTotal: len(scene.Actions),
	}

	e.logger.Info("scene activation started",
		"scene_id", id,
		"execution_id", exec.ID,
		"trigger", trigger.Kind,
		"source", trigger.Source,
		"actions", len(scene.Actions),
	)

	if scene.Input != 0 {
		e.deps.State.SetHDMIInput(inputState(scene.Input))
	}

	if trigger.Kind == TriggerAI && scene.Dedup {
		if e.deps.Announcer != nil {
			e.deps.Announcer.SayAsync(fmt.Sprintf(announceFormat, scene.Announce))
		}
		if err := e.sleep(ctx, aiPreRoll); err != nil {
			exec.Status = StatusCancelled
		}
	}

	for i, action := range scene.Actions {
		if exec.Status == StatusCancelled || ctx.Err() != nil {
			exec.Status = StatusCancelled
			exec.ActionsSkipped = len(scene.Actions) - i
			break
		}
		if err := e.runAction(ctx, action); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				exec.Status = StatusCancelled
				exec.ActionsSkipped = len(scene.Actions) - i
				break
			}
			exec.ActionsFailed++
			exec.Failures = append(exec.Failures, ActionFailure{
				ActionIndex: i,
				Action:      action.kind(),
				ErrorMsg:    err.Error(),
			})
			e.logger.Warn("scene action failed",
				"scene_id", id,
				"action", action.kind(),
				"index", i,
				"error", err,
			)
			continue
		}
		exec.ActionsCompleted++
	}

	exec.CompletedAt = time.Now().UTC()
	exec.DurationMS = exec.CompletedAt.Sub(exec.StartedAt).Milliseconds()
	switch {
	case exec.Status == StatusCancelled:
	case exec.ActionsFailed > 0:
		exec.Status = StatusPartial
	default:
		exec.Status = StatusCompleted
	}

	if scene.Dedup && exec.Status != StatusCancelled && !trigger.accepted {
		e.deps.State.SetLastScene(string(id))
	}

	e.logger.Info("scene activation complete",
		"scene_id", id,
		"execution_id", exec.ID,
		"status", exec.Status,
		"completed", exec.ActionsCompleted,
		"failed", exec.ActionsFailed,
		"skipped", exec.ActionsSkipped,
		"duration_ms", exec.DurationMS,
	)

	e.publish(exec)
	return exec, nil
}

// runAction performs one action and records its effect on state.
func (e *Engine) runAction(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case SetCurtain:
		act, ok := e.deps.Curtains[a.Backend]
		if !ok || act == nil {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, a.Backend)
		}
		return act.SetPercent(ctx, a.Percent)

	case SetProjectorPower:
		if err := e.deps.Projector.Power(ctx, a.On); err != nil {
			return fmt.Errorf("projector power: %w", err)
		}
		if a.On {
			e.deps.State.SetProjectorPower(state.PowerOn)
		} else {
			e.deps.State.SetProjectorPower(state.PowerOff)
		}
		return nil

	case SwitchHDMIInput:
		if a.Port != 1 && a.Port != 2 {
			return fmt.Errorf("%w: %d", ErrInvalidPort, a.Port)
		}
		if err := e.deps.Projector.SwitchInput(ctx, a.Port); err != nil {
			return fmt.Errorf("switching input: %w", err)
		}
		e.deps.State.SetHDMIInput(inputState(a.Port))
		return nil

	case Wait:
		return e.sleep(ctx, a.Duration)

	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}

// publish sends the execution to MQTT and WebSocket subscribers.
func (e *Engine) publish(exec *Execution) {
	if e.deps.MQTT != nil {
		payload, err := json.Marshal(exec)
		if err == nil {
			err = e.deps.MQTT.Publish(sceneEventTopic, payload, 1, false)
		}
		if err != nil {
			e.logger.Warn("publishing scene event failed", "scene_id", exec.SceneID, "error", err)
		}
	}

	if e.deps.Hub != nil {
		e.deps.Hub.Broadcast("scene.activated", map[string]any{
			"scene_id":     exec.SceneID,
			"execution_id": exec.ID,
			"source":       exec.Trigger.Source,
			"status":       string(exec.Status),
			"duration_ms":  exec.DurationMS,
		})
	}
}

func inputState(port int) state.HDMIInput {
	switch port {
	case 1:
		return state.HDMI1
	case 2:
		return state.HDMI2
	default:
		return state.HDMIUnknown
	}
}
