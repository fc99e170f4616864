package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StartupState(t *testing.T) {
	s := New().Snapshot()

	assert.Equal(t, ModeManual, s.Mode)
	assert.True(t, s.LoggingPaused)
	assert.Empty(t, s.LastSceneID)
	assert.Equal(t, CurtainUnknown, s.Curtain.Status)
	assert.Nil(t, s.Curtain.Position)
	assert.Equal(t, PowerUnknown, s.Projector)
	assert.Equal(t, HDMIUnknown, s.HDMI)
	assert.False(t, s.AIConnected)
	assert.Equal(t, DefaultWeather, s.Weather)
}

func TestStore_ForceManual(t *testing.T) {
	st := New()

	assert.False(t, st.ForceManual(), "already manual")

	st.SetMode(ModeAuto)
	assert.True(t, st.ForceManual())
	assert.Equal(t, ModeManual, st.Snapshot().Mode)
}

func TestStore_LoggingIndependentOfMode(t *testing.T) {
	st := New()
	st.SetLoggingPaused(false)
	st.SetMode(ModeAuto)
	st.ForceManual()

	assert.False(t, st.Snapshot().LoggingPaused)
}

func TestStore_Curtain(t *testing.T) {
	st := New()

	st.SetCurtainPosition(75)
	c := st.Snapshot().Curtain
	require.NotNil(t, c.Position)
	assert.Equal(t, 75, *c.Position)
	assert.Equal(t, CurtainStopped, c.Status)
	assert.Equal(t, 75, c.Label())

	st.SetCurtainError(TagCmdFail)
	c = st.Snapshot().Curtain
	assert.Nil(t, c.Position)
	assert.Equal(t, CurtainError, c.Status)
	assert.Equal(t, TagCmdFail, c.Label())

	assert.Equal(t, TagNotAvailable, Curtain{Status: CurtainUnknown}.Label())
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	st := New()
	st.SetCurtainPosition(50)

	snap := st.Snapshot()
	*snap.Curtain.Position = 0

	assert.Equal(t, 50, *st.Snapshot().Curtain.Position)
}

func TestStore_SetAIConnectedReportsChange(t *testing.T) {
	st := New()

	assert.True(t, st.SetAIConnected(true))
	assert.False(t, st.SetAIConnected(true))
	assert.True(t, st.SetAIConnected(false))
}

func TestStore_ObserversNotifiedOnChangeOnly(t *testing.T) {
	st := New()
	var got []Snapshot
	st.Subscribe(func(s Snapshot) { got = append(got, s) })

	st.SetProjectorPower(PowerOn)
	st.SetProjectorPower(PowerOn)
	st.SetHDMIInput(HDMI2)

	require.Len(t, got, 2)
	assert.Equal(t, PowerOn, got[0].Projector)
	assert.Equal(t, HDMI2, got[1].HDMI)
}

func TestStore_ObserverMayReadStore(t *testing.T) {
	st := New()
	var seen Mode
	st.Subscribe(func(Snapshot) { seen = st.Snapshot().Mode })

	st.SetMode(ModeAuto)

	assert.Equal(t, ModeAuto, seen)
}

func TestStore_SlowObserverEndsOnCurrentState(t *testing.T) {
	st := New()

	var mu sync.Mutex
	var last Snapshot
	entered := make(chan struct{}, 1)
	st.Subscribe(func(s Snapshot) {
		select {
		case entered <- struct{}{}:
		default:
		}
		if s.Mode == ModeAuto && !s.AIConnected {
			time.Sleep(100 * time.Millisecond)
		}
		mu.Lock()
		last = s
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		st.SetMode(ModeAuto)
	}()
	<-entered
	st.SetAIConnected(true)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, st.Snapshot(), last)
	assert.True(t, last.AIConnected)
	assert.Equal(t, ModeAuto, last.Mode)
}

func TestStore_ObserverMayMutateStore(t *testing.T) {
	st := New()
	var seen []Mode
	st.Subscribe(func(s Snapshot) {
		seen = append(seen, s.Mode)
		if s.Mode == ModeAuto {
			st.SetMode(ModeManual)
		}
	})

	st.SetMode(ModeAuto)

	assert.Equal(t, []Mode{ModeAuto, ModeManual}, seen)
	assert.Equal(t, ModeManual, st.Snapshot().Mode)
}

func TestStore_LastScene(t *testing.T) {
	st := New()
	st.SetLastScene("set50")
	assert.Equal(t, "set50", st.LastScene())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	st := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.SetCurtainPosition(i)
			st.SetAIConnected(i%2 == 0)
		}()
		go func() {
			defer wg.Done()
			_ = st.Snapshot()
		}()
	}
	wg.Wait()

	assert.NotNil(t, st.Snapshot().Curtain.Position)
}
