package inference

import "errors"

var (
	// ErrUnreachable is returned when the service cannot be reached or
	// answers with a non-2xx status.
	ErrUnreachable = errors.New("inference: service unreachable")

	// ErrBadResponse is returned when a response body cannot be decoded.
	ErrBadResponse = errors.New("inference: bad response")

	// ErrNoPrediction is returned when /predict omits predicted_label.
	ErrNoPrediction = errors.New("inference: no predicted_label in response")
)
