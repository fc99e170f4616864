package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrSceneBusy) {
//	    // another scene holds the gate
//	}
var (
	// ErrSceneNotFound is returned when a scene ID is not in the registry.
	ErrSceneNotFound = errors.New("scene: not found")

	// ErrSceneBusy is returned to AI triggers while another scene is executing.
	ErrSceneBusy = errors.New("scene: busy")

	// ErrUnknownLabel is returned when an AI label has no scene.
	ErrUnknownLabel = errors.New("scene: unknown AI label")

	// ErrBackendUnavailable is returned when an action names a curtain
	// backend the engine was built without.
	ErrBackendUnavailable = errors.New("scene: curtain backend unavailable")

	// ErrInvalidPort is returned for HDMI ports other than 1 and 2.
	ErrInvalidPort = errors.New("scene: invalid HDMI port")
)
