package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/process"
	"github.com/nerrad567/homesense-core/internal/state"
)

const (
	cecTimeout        = 10 * time.Second
	cecActivateGap    = 500 * time.Millisecond
	cecSwitchAttempts = 3
	cecSwitchGap      = time.Second
	cecPollRetryDelay = 2 * time.Second
)

// ProjectorConfig configures the cec-client bridge.
type ProjectorConfig struct {
	Binary string
	Args   []string
	// Device is the CEC logical address of the projector (0 = TV).
	Device int
}

// Projector controls a projector over HDMI-CEC by piping one command per
// invocation into cec-client.
type Projector struct {
	cfg    ProjectorConfig
	runner process.Runner
	sleep  SleepFunc
	logger Logger

	wg sync.WaitGroup
}

// NewProjector creates a projector controller. runner is normally process.Exec.
func NewProjector(cfg ProjectorConfig, runner process.Runner) *Projector {
	if cfg.Binary == "" {
		cfg.Binary = "cec-client"
		cfg.Args = []string{"-s", "-d", "1"}
	}
	return &Projector{
		cfg:    cfg,
		runner: runner,
		sleep:  Sleep,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (p *Projector) SetLogger(logger Logger) {
	p.logger = logger
}

// SetSleep replaces the delay function. Used by tests.
func (p *Projector) SetSleep(fn SleepFunc) {
	p.sleep = fn
}

func (p *Projector) run(ctx context.Context, command string) (process.Result, error) {
	return p.runner.Run(ctx, process.RunConfig{
		Name:    "cec-client",
		Binary:  p.cfg.Binary,
		Args:    p.cfg.Args,
		Stdin:   command + "\n",
		Timeout: cecTimeout,
	})
}

// issue sends a command in the background. The bridge takes seconds per
// call, so callers never wait on it.
func (p *Projector) issue(command string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Debug("cec command", "command", command)
		if _, err := p.run(context.Background(), command); err != nil {
			p.logger.Warn("cec command failed", "command", command, "error", err)
		}
	}()
}

// Power turns the projector on (power on, then claim active source) or
// puts it in standby. It returns once the commands are issued.
func (p *Projector) Power(ctx context.Context, on bool) error {
	if !on {
		p.issue("standby " + strconv.Itoa(p.cfg.Device))
		return nil
	}

	p.issue("on " + strconv.Itoa(p.cfg.Device))
	if err := p.sleep(ctx, cecActivateGap); err != nil {
		return err
	}
	p.issue("as")
	return nil
}

// SwitchInput selects HDMI port 1 or 2 with a Set Stream Path broadcast,
// sent three times one second apart.
func (p *Projector) SwitchInput(ctx context.Context, port int) error {
	if port != 1 && port != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	command := fmt.Sprintf("tx 1F:82:%d0:00", port)
	for i := 0; i < cecSwitchAttempts; i++ {
		p.issue(command)
		if err := p.sleep(ctx, cecSwitchGap); err != nil {
			return err
		}
	}
	return nil
}

// PollPower queries the power status. It never returns an error: bridge
// failures map to PowerError and unrecognised output to PowerUnknown.
func (p *Projector) PollPower(ctx context.Context) state.PowerStatus {
	res, err := p.run(ctx, "pow "+strconv.Itoa(p.cfg.Device))
	if err != nil {
		p.logger.Warn("cec power poll failed", "error", err)
		return state.PowerError
	}
	return ParsePowerStatus(res.Stdout)
}

// PollPowerWithRetry polls once more after 2s when the first poll errors.
func (p *Projector) PollPowerWithRetry(ctx context.Context) state.PowerStatus {
	status := p.PollPower(ctx)
	if status != state.PowerError {
		return status
	}
	if err := p.sleep(ctx, cecPollRetryDelay); err != nil {
		return status
	}
	return p.PollPower(ctx)
}

// ParsePowerStatus maps cec-client output to a power status.
func ParsePowerStatus(out string) state.PowerStatus {
	switch {
	case strings.Contains(out, "power status: on"):
		return state.PowerOn
	case strings.Contains(out, "power status: standby"):
		return state.PowerOff
	default:
		return state.PowerUnknown
	}
}

// Close waits for in-flight commands.
func (p *Projector) Close() {
	p.wg.Wait()
}
