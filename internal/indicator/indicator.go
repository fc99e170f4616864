// Package indicator drives the three status LEDs from the system state.
//
// The red/green pair shows whether telemetry logging is paused (red
// blinking) or active (green solid). The blue LED shows the control
// mode: off in Manual, solid in Auto with the inference service
// reachable, blinking in Auto without it.
package indicator

import (
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/state"
)

// DefaultHalfPeriod is the on (and off) time of a blinking LED.
const DefaultHalfPeriod = 500 * time.Millisecond

// LED is a single on/off output. *gpio.Pin satisfies it.
type LED interface {
	Write(high bool) error
}

// Logger defines the logging interface for the indicators.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// pattern is what one LED should be doing.
type pattern int

const (
	patternOff pattern = iota
	patternOn
	patternBlink
)

// blinkTask owns one blinking LED until Stop returns.
type blinkTask struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startBlink(led LED, half time.Duration, logger Logger) *blinkTask {
	b := &blinkTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go b.run(led, half, logger)
	return b
}

func (b *blinkTask) run(led LED, half time.Duration, logger Logger) {
	defer close(b.done)
	ticker := time.NewTicker(half)
	defer ticker.Stop()

	on := true
	for {
		if err := led.Write(on); err != nil {
			logger.Warn("LED write failed", "error", err)
		}
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			on = !on
		}
	}
}

// Stop ends the task and waits for its goroutine to exit. The LED is left
// in whatever level it had; the caller sets the next level.
func (b *blinkTask) Stop() {
	b.once.Do(func() { close(b.stop) })
	<-b.done
}

// output tracks one LED and its current pattern.
type output struct {
	led     LED
	current pattern
	blink   *blinkTask
}

// Indicators applies state snapshots to the LEDs.
//
// Thread Safety: Apply and Close are safe for concurrent use.
type Indicators struct {
	mu     sync.Mutex
	red    output
	green  output
	blue   output
	half   time.Duration
	logger Logger
	closed bool
}

// New creates indicators for the given LEDs. All LEDs start off.
func New(red, green, blue LED) *Indicators {
	return &Indicators{
		red:    output{led: red},
		green:  output{led: green},
		blue:   output{led: blue},
		half:   DefaultHalfPeriod,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (i *Indicators) SetLogger(logger Logger) {
	i.logger = logger
}

// SetHalfPeriod changes the blink on/off time. It affects blinks started
// afterwards.
func (i *Indicators) SetHalfPeriod(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.half = d
}

// loggingPatterns returns the red and green patterns for the logging flag.
func loggingPatterns(paused bool) (red, green pattern) {
	if paused {
		return patternBlink, patternOff
	}
	return patternOff, patternOn
}

// modePattern returns the blue pattern for the mode and AI reachability.
func modePattern(mode state.Mode, aiConnected bool) pattern {
	switch {
	case mode != state.ModeAuto:
		return patternOff
	case aiConnected:
		return patternOn
	default:
		return patternBlink
	}
}

// Apply drives the LEDs from s. LEDs whose pattern is unchanged are left
// alone so a running blink keeps its phase. It is a state.Observer.
func (i *Indicators) Apply(s state.Snapshot) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}

	red, green := loggingPatterns(s.LoggingPaused)
	i.set(&i.red, red, false)
	i.set(&i.green, green, false)
	i.set(&i.blue, modePattern(s.Mode, s.AIConnected), false)
}

// set moves o to p. A running blink is stopped and joined first.
func (i *Indicators) set(o *output, p pattern, force bool) {
	if o.led == nil || (o.current == p && !force) {
		return
	}
	if o.blink != nil {
		o.blink.Stop()
		o.blink = nil
	}
	o.current = p

	switch p {
	case patternBlink:
		o.blink = startBlink(o.led, i.half, i.logger)
	default:
		if err := o.led.Write(p == patternOn); err != nil {
			i.logger.Warn("LED write failed", "error", err)
		}
	}
}

// Close stops all blink tasks and switches every LED off.
func (i *Indicators) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	for _, o := range []*output{&i.red, &i.green, &i.blue} {
		i.set(o, patternOff, true)
	}
	i.closed = true
}
