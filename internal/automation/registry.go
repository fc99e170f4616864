package automation

import "time"

const (
	curtainSettleDelay = time.Second
	projectorWarmup    = 60 * time.Second
)

// Logger defines the logging interface used by the Engine and Arbiter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// closedScene lowers the curtain fully or to 25% and switches the
// projector off.
func closedScene(id SceneID, percent int) Scene {
	actions := []Action{
		SetCurtain{Backend: BackendPrimary, Percent: percent},
		SetCurtain{Backend: BackendSecondary, Percent: 0},
	}
	if percent == 0 {
		actions = append(actions, Wait{Duration: curtainSettleDelay})
	}
	actions = append(actions, SetProjectorPower{On: false})
	return Scene{ID: id, Actions: actions, Announce: percent, Dedup: true}
}

// projectionScene powers the projector, opens the curtain to percent,
// drops the secondary curtain to 40% as a screen and selects HDMI 2 once
// the projector has warmed up.
func projectionScene(id SceneID, percent int, warmup time.Duration) Scene {
	return Scene{
		ID: id,
		Actions: []Action{
			SetProjectorPower{On: true},
			SetCurtain{Backend: BackendPrimary, Percent: percent},
			Wait{Duration: curtainSettleDelay},
			SetCurtain{Backend: BackendSecondary, Percent: 40},
			Wait{Duration: warmup},
			SwitchHDMIInput{Port: 2},
		},
		Input:    2,
		Announce: percent,
		Dedup:    true,
	}
}

// powerScene switches the projector alone. It is built on demand and is
// not reachable by id.
func powerScene(on bool) Scene {
	id := SceneID("projector_off")
	if on {
		id = "projector_on"
	}
	return Scene{ID: id, Actions: []Action{SetProjectorPower{On: on}}}
}

func inputScene(id SceneID, port int) Scene {
	return Scene{ID: id, Actions: []Action{SwitchHDMIInput{Port: port}}, Input: port}
}

// buildRegistry returns the closed scene set. warmup is the projector
// warm-up wait before the input switch; zero selects 60s.
func buildRegistry(warmup time.Duration) map[SceneID]Scene {
	if warmup <= 0 {
		warmup = projectorWarmup
	}
	scenes := []Scene{
		closedScene(SceneSet0, 0),
		closedScene(SceneSet25, 25),
		projectionScene(SceneSet50, 50, warmup),
		projectionScene(SceneSet75, 75, warmup),
		projectionScene(SceneSet100, 100, warmup),
		inputScene(SceneHDMI1, 1),
		inputScene(SceneHDMI2, 2),
	}
	m := make(map[SceneID]Scene, len(scenes))
	for _, s := range scenes {
		m[s.ID] = s
	}
	return m
}

// aiLabels maps inference labels onto curtain scenes.
var aiLabels = [...]SceneID{SceneSet0, SceneSet25, SceneSet50, SceneSet75, SceneSet100}

// SceneForLabel maps an AI label (0..4) to its scene.
func SceneForLabel(label int) (SceneID, bool) {
	if label < 0 || label >= len(aiLabels) {
		return "", false
	}
	return aiLabels[label], true
}

// CurtainScenes lists the scenes the AI and the numeric keys can select,
// in label order.
func CurtainScenes() []SceneID {
	out := make([]SceneID, len(aiLabels))
	copy(out, aiLabels[:])
	return out
}

// InputScene returns the input-only scene for an HDMI port.
func InputScene(port int) (SceneID, bool) {
	switch port {
	case 1:
		return SceneHDMI1, true
	case 2:
		return SceneHDMI2, true
	default:
		return "", false
	}
}
