// Package session holds the history of one conversation: the system prelude
// fixed when the session is built, followed by the user and assistant turns.
package session

import (
	"github.com/tailored-agentic-units/tinyagent/core/protocol"
)

// Session is an ordered conversation history. The system prelude is
// immutable; only turns are appended or cleared. Implementations must be
// safe for concurrent use.
type Session interface {
	// ID returns the unique session identifier.
	ID() string
	// System returns a copy of the system prelude.
	System() []protocol.Message
	// Turns returns a copy of the user and assistant messages so far.
	Turns() []protocol.Message
	// Messages returns the prelude followed by the turns.
	Messages() []protocol.Message
	// AddMessage appends a turn message.
	AddMessage(msg protocol.Message)
	// Clear drops every turn and keeps the prelude.
	Clear()
}
