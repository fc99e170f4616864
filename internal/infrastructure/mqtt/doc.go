// Package mqtt publishes HomeSense state and events to an MQTT broker.
//
// The controller is a publisher only. It announces itself on
// homesense/system/status (retained, with a Last Will so a crash shows as
// offline), keeps the latest system snapshot retained on
// homesense/state/system, and emits scene results and telemetry as
// non-retained events.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.SystemState(), snapshot, true)
//
// The broker is optional. When mqtt.enabled is false the caller simply
// passes a nil publisher to the engine and recorders.
package mqtt
