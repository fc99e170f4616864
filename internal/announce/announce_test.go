package announce

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/homesense-core/internal/process"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type recordingRunner struct {
	mu   sync.Mutex
	runs []process.RunConfig
	err  error
}

func (r *recordingRunner) Run(_ context.Context, cfg process.RunConfig) (process.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, cfg)
	return process.Result{}, r.err
}

func TestSayAppendsText(t *testing.T) {
	runner := &recordingRunner{}
	a := New([]string{"espeak-ng", "-v", "en"}, runner)

	require.NoError(t, a.Say(context.Background(), "Moving the curtain to 50 percent"))

	require.Len(t, runner.runs, 1)
	assert.Equal(t, "espeak-ng", runner.runs[0].Binary)
	assert.Equal(t, []string{"-v", "en", "Moving the curtain to 50 percent"}, runner.runs[0].Args)
}

func TestSayDoesNotMutateCommand(t *testing.T) {
	cmd := make([]string, 3, 8)
	copy(cmd, []string{"espeak-ng", "-v", "en"})
	runner := &recordingRunner{}
	a := New(cmd, runner)

	require.NoError(t, a.Say(context.Background(), "one"))
	require.NoError(t, a.Say(context.Background(), "two"))
	assert.Equal(t, []string{"-v", "en", "two"}, runner.runs[1].Args)
}

func TestSayWithoutCommand(t *testing.T) {
	a := New(nil, &recordingRunner{})
	assert.ErrorIs(t, a.Say(context.Background(), "x"), ErrNoCommand)
}

func TestSayAsyncRunsInBackground(t *testing.T) {
	runner := &recordingRunner{err: errors.New("no audio device")}
	a := New([]string{"espeak-ng"}, runner)

	a.SayAsync("hello")
	a.Close()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.runs, 1)
	assert.Equal(t, []string{"hello"}, runner.runs[0].Args)
}
