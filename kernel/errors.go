package kernel

import "errors"

// ErrSessionBusy is returned when a turn is requested while another turn
// is still generating against the same session.
var ErrSessionBusy = errors.New("session busy")

// errNotReady signals a turn attempted with no Ready session. It never
// leaves the package: Chat maps it to MessageNotConfigured and ChatStream
// to an empty sequence.
var errNotReady = errors.New("session not ready")

// Caller-facing results for unusable input or an unconfigured model. They
// are returned as text so a chat surface can render them directly.
const (
	MessageUnreadable    = "Unable to read the message."
	MessageNotConfigured = "The model is not configured correctly. Check your model path and settings to ensure correct operation."
)
