package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/homesense-core/internal/device"
	"github.com/nerrad567/homesense-core/internal/display"
	"github.com/nerrad567/homesense-core/internal/indicator"
	"github.com/nerrad567/homesense-core/internal/infrastructure/config"
	"github.com/nerrad567/homesense-core/internal/infrastructure/gpio"
	"github.com/nerrad567/homesense-core/internal/infrastructure/i2c"
	"github.com/nerrad567/homesense-core/internal/infrastructure/logging"
	"github.com/nerrad567/homesense-core/internal/keypad"
	"github.com/nerrad567/homesense-core/internal/process"
	"github.com/nerrad567/homesense-core/internal/sensor"
)

// hardware holds the local peripherals. The I2C bus and every GPIO line
// are required; the LCD and both sensors degrade to absent.
type hardware struct {
	bus     *i2c.Bus
	chip    *gpio.Chip
	lcd     *display.LCD
	leds    *indicator.Indicators
	scanner *keypad.Scanner
	buzzer  *gpio.Pin
	local   *sensor.Local

	// initFailed keeps the failure screen up through Close.
	initFailed bool
}

// openHardware opens the I2C bus, brings up the LCD and sensors, and
// exports the keypad, LED and buzzer lines.
//
// On error everything already opened is released and, when the LCD came
// up, it is left showing the failure screen.
func openHardware(ctx context.Context, cfg config.HardwareConfig, log *logging.Logger) (*hardware, error) {
	hw := &hardware{}

	bus, err := i2c.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("opening I2C bus %d: %w", cfg.I2C.Bus, err)
	}
	hw.bus = bus

	lcd := display.New(bus.Device(uint16(cfg.I2C.LCD)))
	lcd.SetLogger(log.Component("display"))
	if lcdErr := lcd.Init(); lcdErr != nil {
		log.Warn("LCD unavailable", "address", fmt.Sprintf("0x%02x", cfg.I2C.LCD), "error", lcdErr)
	} else {
		hw.lcd = lcd
	}

	bme := sensor.NewBME280(bus.Device(uint16(cfg.I2C.BME280)))
	if initErr := bme.Init(); initErr != nil {
		log.Warn("BME280 not detected", "error", initErr)
	}
	bh := sensor.NewBH1750(bus.Device(uint16(cfg.I2C.BH1750)))
	if initErr := bh.Init(); initErr != nil {
		log.Warn("BH1750 not detected", "error", initErr)
	}
	hw.local = sensor.NewLocal(bme, bh)
	hw.local.SetLogger(log.Component("sensor"))

	if err := hw.openGPIO(ctx, cfg); err != nil {
		hw.showInitFailure(log)
		hw.Close(log)
		return nil, err
	}

	log.Info("hardware initialised",
		"i2c_bus", cfg.I2C.Bus,
		"lcd", hw.lcd != nil,
		"bme280", bme.Present(),
		"bh1750", bh.Present(),
	)
	return hw, nil
}

func (hw *hardware) openGPIO(ctx context.Context, cfg config.HardwareConfig) error {
	hw.chip = gpio.NewChip("", cfg.GPIO.SysfsBase, pullDownFunc(cfg.GPIO.PullDownCommand))

	rows := make([]keypad.InputPin, 0, len(cfg.Keypad.Rows))
	for _, bcm := range cfg.Keypad.Rows {
		pin, err := hw.chip.Input(ctx, bcm)
		if err != nil {
			return fmt.Errorf("keypad row %d: %w", bcm, err)
		}
		rows = append(rows, pin)
	}

	cols := make([]keypad.OutputPin, 0, len(cfg.Keypad.Cols))
	for _, bcm := range cfg.Keypad.Cols {
		pin, err := hw.chip.Output(bcm)
		if err != nil {
			return fmt.Errorf("keypad col %d: %w", bcm, err)
		}
		cols = append(cols, pin)
	}

	scanner, err := keypad.NewScanner(rows, cols, device.Sleep)
	if err != nil {
		return fmt.Errorf("keypad: %w", err)
	}
	hw.scanner = scanner

	leds := make([]*gpio.Pin, 0, 3)
	for _, bcm := range []int{cfg.LEDs.Red, cfg.LEDs.Green, cfg.LEDs.Blue} {
		pin, err := hw.chip.Output(bcm)
		if err != nil {
			return fmt.Errorf("LED %d: %w", bcm, err)
		}
		leds = append(leds, pin)
	}
	hw.leds = indicator.New(leds[0], leds[1], leds[2])

	buzzer, err := hw.chip.Output(cfg.Buzzer)
	if err != nil {
		return fmt.Errorf("buzzer %d: %w", cfg.Buzzer, err)
	}
	hw.buzzer = buzzer

	return nil
}

// dispatcher returns the keypad command dispatcher, or nil without a buzzer.
func (hw *hardware) dispatcher(ctrl keypad.Controller) *keypad.Dispatcher {
	if hw.buzzer == nil {
		return nil
	}
	return keypad.NewDispatcher(ctrl, hw.buzzer, device.Sleep)
}

// showInitFailure puts "System Init / FAIL" on the LCD, if there is one.
func (hw *hardware) showInitFailure(log *logging.Logger) {
	hw.initFailed = true
	if hw.lcd == nil {
		return
	}
	if err := hw.lcd.ShowInitFailure(); err != nil {
		log.Warn("LCD failure screen not shown", "error", err)
	}
}

// Close releases the peripherals in reverse order of opening. It is safe
// on a partially opened hardware.
func (hw *hardware) Close(log *logging.Logger) {
	if hw.leds != nil {
		hw.leds.Close()
	}
	if hw.chip != nil {
		if err := hw.chip.Close(); err != nil {
			log.Error("error releasing GPIO", "error", err)
		}
	}
	if hw.lcd != nil && !hw.initFailed {
		if err := hw.lcd.Close(); err != nil {
			log.Error("error clearing LCD", "error", err)
		}
	}
	if hw.bus != nil {
		if err := hw.bus.Close(); err != nil {
			log.Error("error closing I2C bus", "error", err)
		}
	}
}

// pullDownFunc runs command once per input pin with "{pin}" replaced by
// the BCM number. An empty command disables pull-down setup.
func pullDownFunc(command []string) gpio.PullDownFunc {
	if len(command) == 0 {
		return nil
	}
	return func(ctx context.Context, bcm int) error {
		args := make([]string, 0, len(command)-1)
		for _, a := range command[1:] {
			args = append(args, strings.ReplaceAll(a, "{pin}", strconv.Itoa(bcm)))
		}
		_, err := process.Exec.Run(ctx, process.RunConfig{
			Name:   "pull-down",
			Binary: command[0],
			Args:   args,
		})
		return err
	}
}
