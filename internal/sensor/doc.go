// Package sensor reads the locally attached I2C sensors: a Bosch BME280
// (temperature, humidity, pressure) and a ROHM BH1750 (illuminance).
//
// Compensation is kept separate from bus access so Calibration.Compensate
// can be checked against known vectors without hardware.
package sensor
