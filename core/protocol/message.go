// Package protocol defines the conversation types shared by the prompt
// assembler, the session history, and the model runtime adapters.
package protocol

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation. System messages form the
// prelude assembled before the first turn; user and assistant messages make
// up the turn history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a Message with the given role and content.
//
// Example:
//
//	msg := protocol.NewMessage(protocol.RoleUser, "Hello, world!")
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// SystemMessages wraps each text in a system-role Message, preserving order.
func SystemMessages(texts ...string) []Message {
	msgs := make([]Message, 0, len(texts))
	for _, text := range texts {
		msgs = append(msgs, NewMessage(RoleSystem, text))
	}
	return msgs
}
