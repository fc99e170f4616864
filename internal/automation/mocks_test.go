package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/state"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// callLog records every device interaction in order, across mocks.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type mockCurtain struct {
	name string
	log  *callLog
	err  error

	// store, when set, receives the confirmed position like the Tuya
	// backend does.
	store *state.Store
}

func (m *mockCurtain) SetPercent(_ context.Context, percent int) error {
	m.log.add("%s %d", m.name, percent)
	if m.err == nil && m.store != nil {
		m.store.SetCurtainPosition(percent)
	}
	return m.err
}

type mockProjector struct {
	log      *callLog
	powerErr error
}

func (m *mockProjector) Power(_ context.Context, on bool) error {
	if on {
		m.log.add("projector on")
	} else {
		m.log.add("projector off")
	}
	return m.powerErr
}

func (m *mockProjector) SwitchInput(_ context.Context, port int) error {
	m.log.add("hdmi %d", port)
	return nil
}

type mockAnnouncer struct {
	log *callLog
}

func (m *mockAnnouncer) SayAsync(text string) {
	m.log.add("say %s", text)
}

type mqttMessage struct {
	Topic   string
	Payload map[string]any
}

type mockMQTT struct {
	mu       sync.Mutex
	messages []mqttMessage
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var parsed map[string]any
	_ = json.Unmarshal(payload, &parsed)
	m.messages = append(m.messages, mqttMessage{Topic: topic, Payload: parsed})
	return nil
}

type broadcast struct {
	Channel string
	Payload any
}

type mockHub struct {
	mu     sync.Mutex
	events []broadcast
}

func (m *mockHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, broadcast{Channel: channel, Payload: payload})
}

// runs returns the scene id and status of every published execution.
func (m *mockHub) runs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		p, ok := e.Payload.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("%v %v", p["scene_id"], p["status"]))
	}
	return out
}

type auditRecord struct {
	Source     string
	ActionType string
	Details    string
	IP         string
}

type mockAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (m *mockAudit) Record(_ context.Context, source, actionType, details, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, auditRecord{source, actionType, details, ip})
}

func (m *mockAudit) snapshot() []auditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auditRecord, len(m.records))
	copy(out, m.records)
	return out
}

type mockDisplay struct {
	mu     sync.Mutex
	scenes []string
}

func (m *mockDisplay) ShowScene(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, id)
}

// recordingSleep logs the duration and returns immediately unless ctx is done.
func recordingSleep(log *callLog) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		log.add("wait %s", d)
		return ctx.Err()
	}
}

// gatedSleep blocks every wait until release is closed.
func gatedSleep(release <-chan struct{}) SleepFunc {
	return func(ctx context.Context, _ time.Duration) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
