package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/homesense-core/internal/audit"
	"github.com/nerrad567/homesense-core/internal/state"
)

// ModeStore is the part of the state store the arbiter mutates.
// *state.Store satisfies it.
type ModeStore interface {
	ForceManual() (wasAuto bool)
	SetMode(m state.Mode) state.Mode
	SetLoggingPaused(paused bool)
	SetLastScene(id string)
	LastScene() string
}

// AuditRecorder appends audit entries. *audit.Recorder satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, source, actionType, details, ip string)
}

// SceneDisplay shows the triggered scene on the front panel.
type SceneDisplay interface {
	ShowScene(id string)
}

// Arbiter decides whether and how a trigger runs a scene.
//
// Manual triggers always win: they switch the mode to Manual, are audited
// and recorded as lastSceneId immediately, and run in the background in
// the order they arrived. AI triggers are dropped when they match
// lastSceneId, when the gate is busy or while manual triggers are queued.
type Arbiter struct {
	engine  *Engine
	state   ModeStore
	audit   AuditRecorder
	display SceneDisplay
	logger  Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// queue holds accepted manual runs. One drain goroutine at a time
	// feeds them to the engine, oldest first.
	qmu      sync.Mutex
	queue    []queuedRun
	draining bool
	closed   bool
}

type queuedRun struct {
	scene   Scene
	trigger Trigger
}

// NewArbiter creates an arbiter. Background runs use context.Background
// until Start is called.
func NewArbiter(engine *Engine, st ModeStore, rec AuditRecorder) *Arbiter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Arbiter{
		engine: engine,
		state:  st,
		audit:  rec,
		logger: noopLogger{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetLogger sets the logger.
func (a *Arbiter) SetLogger(logger Logger) {
	a.logger = logger
}

// SetDisplay sets the panel that shows manual scene triggers.
func (a *Arbiter) SetDisplay(d SceneDisplay) {
	a.display = d
}

// Start binds background scene runs to ctx.
func (a *Arbiter) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel()
	a.ctx, a.cancel = context.WithCancel(ctx)
}

// Close cancels background runs, drops anything still queued and waits
// for the drain goroutine to return.
func (a *Arbiter) Close() {
	a.mu.Lock()
	a.cancel()
	a.mu.Unlock()

	a.qmu.Lock()
	a.closed = true
	a.qmu.Unlock()
	a.Wait()
}

// Wait blocks until every background scene run has returned.
func (a *Arbiter) Wait() {
	a.wg.Wait()
}

func (a *Arbiter) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

// Manual handles a keypad or web scene trigger.
//
// If the mode is Auto it is switched to Manual and the mode switch is
// audited before the scene entry. A curtain scene becomes lastSceneId as
// soon as it is accepted. The scene itself runs in the background behind
// any earlier triggers; Manual returns once it has been queued.
//
// Returns ErrSceneNotFound (after auditing it) for unknown ids.
func (a *Arbiter) Manual(ctx context.Context, id SceneID, source, ip string) error {
	scene, ok := a.engine.Scene(id)
	if !ok {
		a.audit.Record(ctx, audit.SourceSystem, audit.ActionError,
			fmt.Sprintf("unknown scene '%s'", id), "")
		return fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}

	if a.state.ForceManual() {
		a.audit.Record(ctx, source, audit.ActionModeSwitch, "switched to manual mode", ip)
		a.logger.Info("manual trigger switched mode to manual", "source", source)
	}
	a.audit.Record(ctx, source, audit.ActionScene, fmt.Sprintf("scene '%s' executed", id), ip)

	if a.display != nil {
		a.display.ShowScene(string(id))
	}

	trigger := Trigger{Kind: TriggerManual, Source: source, IP: ip}
	a.qmu.Lock()
	if scene.Dedup && !a.closed {
		a.state.SetLastScene(string(id))
		trigger.accepted = true
	}
	a.enqueueLocked(scene, trigger)
	a.qmu.Unlock()
	return nil
}

// dispatch queues a manual run behind every earlier one.
func (a *Arbiter) dispatch(scene Scene, trigger Trigger) {
	a.qmu.Lock()
	a.enqueueLocked(scene, trigger)
	a.qmu.Unlock()
}

// enqueueLocked appends a run and starts the drain goroutine if none is
// running. qmu must be held; taking it around SetLastScene as well keeps
// lastSceneId in acceptance order.
func (a *Arbiter) enqueueLocked(scene Scene, trigger Trigger) {
	if a.closed {
		a.logger.Info("arbiter closed, scene not queued", "scene_id", scene.ID)
		return
	}
	a.queue = append(a.queue, queuedRun{scene: scene, trigger: trigger})
	if a.draining {
		return
	}
	a.draining = true
	a.wg.Add(1)
	go a.drain()
}

func (a *Arbiter) drain() {
	defer a.wg.Done()
	for {
		a.qmu.Lock()
		if len(a.queue) == 0 {
			a.draining = false
			a.qmu.Unlock()
			return
		}
		next := a.queue[0]
		a.queue[0] = queuedRun{}
		a.queue = a.queue[1:]
		a.qmu.Unlock()

		ctx := a.runContext()
		if ctx.Err() != nil {
			a.logger.Info("dropping queued scene on shutdown", "scene_id", next.scene.ID)
			continue
		}
		if _, err := a.engine.run(ctx, next.scene, next.trigger); err != nil {
			a.logger.Warn("manual scene did not run", "scene_id", next.scene.ID, "source", next.trigger.Source, "error", err)
		}
	}
}

// queued reports whether manual runs are waiting or executing.
func (a *Arbiter) queued() bool {
	a.qmu.Lock()
	defer a.qmu.Unlock()
	return a.draining
}

// AI handles a prediction from the inference service.
//
// Returns:
//   - *Execution: the completed run, or nil when the label matched
//     lastSceneId and nothing ran
//   - error: ErrUnknownLabel, ErrSceneBusy, or a gate wait error
func (a *Arbiter) AI(ctx context.Context, label int) (*Execution, error) {
	id, ok := SceneForLabel(label)
	if !ok {
		a.logger.Warn("unknown AI label", "label", label)
		return nil, fmt.Errorf("%w: %d", ErrUnknownLabel, label)
	}

	if string(id) == a.state.LastScene() {
		a.logger.Debug("AI scene already applied, skipping", "scene_id", id)
		return nil, nil //nolint:nilnil // nothing ran
	}
	if a.queued() {
		a.logger.Info("AI scene deferred, manual scenes pending", "scene_id", id)
		return nil, ErrSceneBusy
	}

	exec, err := a.engine.Execute(ctx, id, Trigger{Kind: TriggerAI, Source: audit.SourceAI})
	if err != nil {
		if errors.Is(err, ErrSceneBusy) {
			a.logger.Info("AI scene deferred, another scene is executing", "scene_id", id)
		}
		return nil, err
	}

	a.audit.Record(ctx, audit.SourceAI, audit.ActionScene, fmt.Sprintf("scene '%s' executed", id), "")
	return exec, nil
}

// SetMode switches between Manual and Auto.
func (a *Arbiter) SetMode(ctx context.Context, mode state.Mode, source, ip string) {
	a.state.SetMode(mode)
	a.audit.Record(ctx, source, audit.ActionModeSwitch, fmt.Sprintf("switched to %s mode", mode), ip)
}

// SetLogging pauses or resumes telemetry logging and AI training uploads.
func (a *Arbiter) SetLogging(ctx context.Context, paused bool, source, ip string) {
	a.state.SetLoggingPaused(paused)
	details := "logging on"
	if paused {
		details = "logging off"
	}
	a.audit.Record(ctx, source, audit.ActionLogging, details, ip)
}

// Projector queues a one-action power scene, so it never interleaves
// with a running scene's own projector commands. The mode and
// lastSceneId are left unchanged.
func (a *Arbiter) Projector(ctx context.Context, on bool, source, ip string) error {
	details := "power off"
	if on {
		details = "power on"
	}
	a.audit.Record(ctx, source, audit.ActionProjector, details, ip)
	a.dispatch(powerScene(on), Trigger{Kind: TriggerManual, Source: source, IP: ip})
	return nil
}

// HDMI queues an input-only scene for port 1 or 2.
func (a *Arbiter) HDMI(ctx context.Context, port int, source, ip string) error {
	id, ok := InputScene(port)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	scene, _ := a.engine.Scene(id)
	a.audit.Record(ctx, source, audit.ActionHDMI, fmt.Sprintf("switched to HDMI %d", port), ip)
	a.dispatch(scene, Trigger{Kind: TriggerManual, Source: source, IP: ip})
	return nil
}
