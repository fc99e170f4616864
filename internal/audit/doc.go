// Package audit records the append-only trail of operator, AI and system
// actions in the audit_logs table and serves it back for the /log page.
//
// Every entry carries a local date and time, the source that caused it
// ("Keypad", "Web UI", "AI", "System", "Weather"), an action type, free
// text details and the client IP ("--" when there is none).
package audit
