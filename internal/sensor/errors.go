package sensor

import "errors"

var (
	// ErrNotPresent is returned when a sensor was not detected at startup.
	ErrNotPresent = errors.New("sensor: not present")

	// ErrIO is returned when a bus transaction fails during a reading.
	ErrIO = errors.New("sensor: bus i/o failure")
)
