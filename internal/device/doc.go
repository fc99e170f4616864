// Package device drives the controllable hardware: the Tuya cloud curtain,
// the SwitchBot gateway (secondary curtain and hub sensors) and the
// projector over HDMI-CEC.
//
// Tuya is the only backend with command feedback; its outcome is written
// to a CurtainStateSink. SwitchBot commands and CEC commands are issued in
// the background and their failures are only logged.
//
// Usage:
//
//	tuya := device.NewTuyaCurtain(device.TuyaConfig{...}, store)
//	if err := tuya.Connect(ctx); err != nil {
//	    return err // fatal at startup
//	}
//	_ = tuya.SetPercent(ctx, 50)
package device
