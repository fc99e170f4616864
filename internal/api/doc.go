// Package api implements the HTTP surface and WebSocket status hub for HomeSense.
//
// This package provides:
//   - Control endpoints for scenes, mode, logging, projector power and HDMI input
//   - Read endpoints for status, sensor data, weather and the audit trail
//   - The MJPEG camera stream at /video_feed
//   - A WebSocket hub that pushes status changes to the control panel
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// Handlers never touch hardware. Every control request goes through the
// mode arbiter, which owns auditing and scene dispatch, and every read
// comes from a state.Store snapshot. Scene triggers return as soon as the
// scene is queued.
//
// # Graceful Degradation
//
// The camera, audit log and buzzer are optional. Without a camera
// /video_feed answers 503; without an audit repository /log answers 500.
package api
