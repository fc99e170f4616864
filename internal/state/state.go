// Package state holds the single in-memory SystemState shared by the
// scheduler loops, the keypad, the HTTP handlers and the scene engine.
//
// Every mutation goes through Store, which takes its mutex, applies the
// change and then notifies subscribers outside the lock. Deliveries never
// overlap and the last one an observer sees is always the current state.
// Readers only ever see Snapshot copies.
package state

import (
	"sync"
	"time"
)

// Mode is the control mode.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// CurtainStatus describes how much is known about the curtain.
type CurtainStatus string

const (
	CurtainUnknown CurtainStatus = "unknown"
	CurtainStopped CurtainStatus = "stopped"
	CurtainError   CurtainStatus = "error"
)

// Curtain error tags shown in place of a position.
const (
	TagNotAvailable = "N/A"
	TagCmdFail      = "CmdFail"
	TagException    = "Exception"
)

// PowerStatus is the projector power state as reported by CEC polling.
type PowerStatus string

const (
	PowerOn      PowerStatus = "ON"
	PowerOff     PowerStatus = "OFF"
	PowerUnknown PowerStatus = "Unknown"
	PowerError   PowerStatus = "Error"
)

// HDMIInput is the selected projector input.
type HDMIInput string

const (
	HDMI1       HDMIInput = "HDMI 1"
	HDMI2       HDMIInput = "HDMI 2"
	HDMIUnknown HDMIInput = "Unknown"
)

// Curtain is the last known curtain state. Position is nil when unknown.
type Curtain struct {
	Status   CurtainStatus `json:"status"`
	Position *int          `json:"position,omitempty"`
	ErrorTag string        `json:"error_tag,omitempty"`
}

// Label is the position as a number, or the error tag / "N/A".
func (c Curtain) Label() any {
	if c.Position != nil {
		return *c.Position
	}
	if c.ErrorTag != "" {
		return c.ErrorTag
	}
	return TagNotAvailable
}

// Telemetry is the latest combined sensor snapshot. Nil fields were unavailable.
type Telemetry struct {
	Timestamp            time.Time `json:"timestamp"`
	LocalTempC           *float64  `json:"local_temp_c"`
	LocalHumidityPercent *float64  `json:"local_humidity_percent"`
	LocalPressureHPa     *float64  `json:"local_pressure_hpa"`
	LocalLightLux        *float64  `json:"local_light_lux"`
	HubTempC             *float64  `json:"hub_temp_c"`
	HubHumidityPercent   *float64  `json:"hub_humidity_percent"`
	HubLightLevel        *float64  `json:"hub_light_level"`
	CurtainPercent       *int      `json:"tuya_curtain_percent"`
}

// Weather is today's forecast summary.
type Weather struct {
	Text      string    `json:"weather"`
	High      string    `json:"high"`
	Low       string    `json:"low"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// DefaultWeather is shown until the first successful fetch.
var DefaultWeather = Weather{Text: "---", High: "--", Low: "--"}

// Snapshot is an immutable copy of the system state.
type Snapshot struct {
	Mode          Mode        `json:"mode"`
	LoggingPaused bool        `json:"logging_paused"`
	LastSceneID   string      `json:"last_scene_id,omitempty"`
	Curtain       Curtain     `json:"curtain"`
	Projector     PowerStatus `json:"projector"`
	HDMI          HDMIInput   `json:"hdmi"`
	AIConnected   bool        `json:"ai_connected"`
	Telemetry     *Telemetry  `json:"telemetry,omitempty"`
	Weather       Weather     `json:"weather"`
}

// AutoMode reports whether the mode is Auto.
func (s Snapshot) AutoMode() bool { return s.Mode == ModeAuto }

// Observer is called after every change with the new snapshot.
type Observer func(Snapshot)

// Store owns the system state.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Observers run on a
//     mutating goroutine after the lock is released, one delivery at a
//     time. Changes made while a delivery is in progress are coalesced
//     and handed to observers by the goroutine already delivering, so a
//     slow observer can skip intermediate states but never ends on a
//     stale one.
type Store struct {
	mu        sync.RWMutex
	s         Snapshot
	seq       uint64
	observers []Observer

	notifyMu   sync.Mutex
	delivering bool
	pending    bool
	delivered  uint64
}

// New returns a Store in the startup state: Manual, logging paused,
// curtain and projector unknown.
func New() *Store {
	return &Store{
		s: Snapshot{
			Mode:          ModeManual,
			LoggingPaused: true,
			Curtain:       Curtain{Status: CurtainUnknown},
			Projector:     PowerUnknown,
			HDMI:          HDMIUnknown,
			Weather:       DefaultWeather,
		},
	}
}

// Subscribe registers an observer. Observers must not block for long.
func (st *Store) Subscribe(fn Observer) {
	st.mu.Lock()
	st.observers = append(st.observers, fn)
	st.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.copyLocked()
}

func (st *Store) copyLocked() Snapshot {
	s := st.s
	if s.Curtain.Position != nil {
		p := *s.Curtain.Position
		s.Curtain.Position = &p
	}
	if s.Telemetry != nil {
		t := *s.Telemetry
		s.Telemetry = &t
	}
	return s
}

// update applies fn under the lock and notifies observers when fn reports
// a change.
func (st *Store) update(fn func(s *Snapshot) bool) {
	st.mu.Lock()
	changed := fn(&st.s)
	if changed {
		st.seq++
	}
	st.mu.Unlock()

	if changed {
		st.notify()
	}
}

// notify delivers the newest snapshot to every observer. If another
// goroutine is already delivering it picks the change up on its next
// pass, which also covers observers that mutate the store themselves.
func (st *Store) notify() {
	st.notifyMu.Lock()
	if st.delivering {
		st.pending = true
		st.notifyMu.Unlock()
		return
	}
	st.delivering = true

	for {
		st.pending = false
		st.notifyMu.Unlock()

		st.mu.RLock()
		snap, seq := st.copyLocked(), st.seq
		observers := append([]Observer(nil), st.observers...)
		st.mu.RUnlock()

		if seq > st.delivered {
			st.delivered = seq
			for _, o := range observers {
				o(snap)
			}
		}

		st.notifyMu.Lock()
		if !st.pending {
			st.delivering = false
			st.notifyMu.Unlock()
			return
		}
	}
}

// SetMode sets the control mode. It returns the previous mode.
func (st *Store) SetMode(m Mode) Mode {
	var prev Mode
	st.update(func(s *Snapshot) bool {
		prev = s.Mode
		s.Mode = m
		return prev != m
	})
	return prev
}

// ForceManual switches to Manual and reports whether the mode was Auto.
func (st *Store) ForceManual() bool {
	return st.SetMode(ModeManual) == ModeAuto
}

// SetLoggingPaused pauses or resumes AI training uploads.
func (st *Store) SetLoggingPaused(paused bool) {
	st.update(func(s *Snapshot) bool {
		if s.LoggingPaused == paused {
			return false
		}
		s.LoggingPaused = paused
		return true
	})
}

// SetAIConnected records inference reachability and reports whether it changed.
func (st *Store) SetAIConnected(connected bool) bool {
	var changed bool
	st.update(func(s *Snapshot) bool {
		changed = s.AIConnected != connected
		s.AIConnected = connected
		return changed
	})
	return changed
}

// SetCurtainPosition records a confirmed open percentage.
func (st *Store) SetCurtainPosition(percent int) {
	st.update(func(s *Snapshot) bool {
		p := percent
		s.Curtain = Curtain{Status: CurtainStopped, Position: &p}
		return true
	})
}

// SetCurtainError marks the position unknown with the given tag.
func (st *Store) SetCurtainError(tag string) {
	st.update(func(s *Snapshot) bool {
		s.Curtain = Curtain{Status: CurtainError, ErrorTag: tag}
		return true
	})
}

// SetProjectorPower records a polled power status.
func (st *Store) SetProjectorPower(p PowerStatus) {
	st.update(func(s *Snapshot) bool {
		if s.Projector == p {
			return false
		}
		s.Projector = p
		return true
	})
}

// SetHDMIInput records the selected input.
func (st *Store) SetHDMIInput(in HDMIInput) {
	st.update(func(s *Snapshot) bool {
		if s.HDMI == in {
			return false
		}
		s.HDMI = in
		return true
	})
}

// SetLastScene records the last completed scene.
func (st *Store) SetLastScene(id string) {
	st.update(func(s *Snapshot) bool {
		if s.LastSceneID == id {
			return false
		}
		s.LastSceneID = id
		return true
	})
}

// LastScene returns the last completed scene, or "" if none.
func (st *Store) LastScene() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.LastSceneID
}

// SetTelemetry stores the latest sensor snapshot.
func (st *Store) SetTelemetry(t Telemetry) {
	st.update(func(s *Snapshot) bool {
		s.Telemetry = &t
		return true
	})
}

// SetWeather stores the latest forecast.
func (st *Store) SetWeather(w Weather) {
	st.update(func(s *Snapshot) bool {
		s.Weather = w
		return true
	})
}
