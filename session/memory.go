package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/tinyagent/core/protocol"
)

type memorySession struct {
	id     string
	system []protocol.Message
	turns  []protocol.Message
	mu     sync.RWMutex
}

// New creates an in-memory Session with the given system prelude. The
// session is assigned a unique UUIDv7 identifier.
func New(system []protocol.Message) Session {
	return &memorySession{
		id:     uuid.Must(uuid.NewV7()).String(),
		system: slices.Clone(system),
	}
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) System() []protocol.Message {
	return slices.Clone(s.system)
}

func (s *memorySession) Turns() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.turns)
}

func (s *memorySession) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]protocol.Message, 0, len(s.system)+len(s.turns))
	msgs = append(msgs, s.system...)
	return append(msgs, s.turns...)
}

func (s *memorySession) AddMessage(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, msg)
}

func (s *memorySession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
