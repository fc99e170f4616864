// Package process runs external programs.
//
// Run executes short commands to completion with a timeout: the CEC bridge,
// the TTS engine and GPIO bias setup. Manager supervises long-running
// programs such as the camera encoder, streaming their stdout to a writer and
// restarting them when they exit unexpectedly.
//
// Managed processes are started in their own process group so Stop can
// signal any children they spawn.
package process
