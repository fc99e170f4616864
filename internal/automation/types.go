package automation

import (
	"time"

	"github.com/google/uuid"
)

// SceneID names a compiled-in scene.
type SceneID string

const (
	SceneSet0   SceneID = "set0"
	SceneSet25  SceneID = "set25"
	SceneSet50  SceneID = "set50"
	SceneSet75  SceneID = "set75"
	SceneSet100 SceneID = "set100"
	SceneHDMI1  SceneID = "hdmi1"
	SceneHDMI2  SceneID = "hdmi2"
)

// Backend selects which curtain actuator an action drives.
type Backend string

const (
	// BackendPrimary is the cloud curtain whose confirmed position is tracked.
	BackendPrimary Backend = "tuya"
	// BackendSecondary is the fire-and-forget second curtain.
	BackendSecondary Backend = "switchbot"
)

// Action is one step of a scene. The set of implementations is closed:
// SetCurtain, SetProjectorPower, SwitchHDMIInput and Wait.
type Action interface {
	kind() string
}

// SetCurtain moves a curtain to Percent (0 = scene set0, 100 = set100).
type SetCurtain struct {
	Backend Backend
	Percent int
}

// SetProjectorPower turns the projector on or off.
type SetProjectorPower struct {
	On bool
}

// SwitchHDMIInput selects HDMI input Port (1 or 2).
type SwitchHDMIInput struct {
	Port int
}

// Wait pauses the scene.
type Wait struct {
	Duration time.Duration
}

func (SetCurtain) kind() string        { return "set_curtain" }
func (SetProjectorPower) kind() string { return "set_projector_power" }
func (SwitchHDMIInput) kind() string   { return "switch_hdmi_input" }
func (Wait) kind() string              { return "wait" }

// Scene is an ordered list of actions.
type Scene struct {
	ID      SceneID
	Actions []Action

	// Input is recorded as the selected HDMI input when the scene starts.
	// Zero leaves the input untouched until a SwitchHDMIInput completes.
	Input int

	// Announce is the target percent spoken before an AI-triggered run.
	Announce int

	// Dedup marks curtain scenes. Only these update lastSceneId.
	Dedup bool
}

// TriggerKind distinguishes operator triggers from AI triggers.
type TriggerKind string

const (
	TriggerManual TriggerKind = "manual"
	TriggerAI     TriggerKind = "ai"
)

// Trigger describes who asked for a scene.
type Trigger struct {
	Kind   TriggerKind `json:"kind"`
	Source string      `json:"source"`
	IP     string      `json:"ip,omitempty"`

	// accepted is set by the arbiter when lastSceneId was already
	// recorded as the trigger was queued.
	accepted bool
}

// ExecutionStatus represents the outcome of a scene run.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Execution tracks a single run of a scene.
type Execution struct {
	ID               string          `json:"id"`
	SceneID          SceneID         `json:"scene_id"`
	Trigger          Trigger         `json:"trigger"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      time.Time       `json:"completed_at"`
	Status           ExecutionStatus `json:"status"`
	ActionsTotal     int             `json:"actions_total"`
	ActionsCompleted int             `json:"actions_completed"`
	ActionsFailed    int             `json:"actions_failed"`
	ActionsSkipped   int             `json:"actions_skipped"`
	Failures         []ActionFailure `json:"failures,omitempty"`
	DurationMS       int64           `json:"duration_ms"`
}

// ActionFailure records one failed action.
type ActionFailure struct {
	ActionIndex int    `json:"action_index"`
	Action      string `json:"action"`
	ErrorMsg    string `json:"error_message"`
}

// GenerateID returns a new execution ID.
func GenerateID() string {
	return "exec-" + uuid.NewString()[:8]
}
