package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrCommandRejected) {
//	    // the cloud accepted the request but refused the command
//	}
var (
	// ErrCommandRejected is returned when a cloud API answers success=false.
	ErrCommandRejected = errors.New("device: command rejected")

	// ErrTransport is returned when a request could not be completed
	// (network error, timeout, non-2xx status, undecodable body).
	ErrTransport = errors.New("device: transport failure")

	// ErrAuth is returned when the Tuya access token cannot be obtained.
	ErrAuth = errors.New("device: authentication failed")

	// ErrInvalidPercent is returned for curtain positions outside 0..100.
	ErrInvalidPercent = errors.New("device: percent out of range")

	// ErrInvalidPort is returned for HDMI ports other than 1 and 2.
	ErrInvalidPort = errors.New("device: invalid hdmi port")
)
