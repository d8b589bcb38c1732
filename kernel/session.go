package kernel

import (
	"slices"

	"github.com/tailored-agentic-units/tinyagent/antiprompt"
	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/model"
	"github.com/tailored-agentic-units/tinyagent/session"
)

// GenerationConfig selects the model and bounds generation. Start from
// DefaultGenerationConfig; a session keeps its own copy.
type GenerationConfig struct {
	// ModelPath names the model to load. Blank leaves the kernel
	// Uninitialized without error.
	ModelPath   string `json:"model_path,omitempty" yaml:"model_path" toml:"model_path"`
	ContextSize int    `json:"context_size,omitempty" yaml:"context_size" toml:"context_size"`
	GPULayers   int    `json:"gpu_layers,omitempty" yaml:"gpu_layers" toml:"gpu_layers"`
	MaxTokens   int    `json:"max_tokens,omitempty" yaml:"max_tokens" toml:"max_tokens"`
	// StopMarkers end a reply; output is truncated before the first one.
	StopMarkers []string `json:"stop_markers,omitempty" yaml:"stop_markers" toml:"stop_markers"`
	// RedundancyLength is the number of extra trailing bytes withheld from
	// each emitted chunk.
	RedundancyLength int `json:"redundancy_length,omitempty" yaml:"redundancy_length" toml:"redundancy_length"`
	// SuppressCommentary adds a directive asking for bare output when an
	// expected output format is set.
	SuppressCommentary bool `json:"suppress_commentary" yaml:"suppress_commentary" toml:"suppress_commentary"`
}

// DefaultGenerationConfig returns the default limits with no model
// selected.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		ContextSize:        1024,
		GPULayers:          0,
		MaxTokens:          256,
		StopMarkers:        slices.Clone(antiprompt.DefaultMarkers),
		RedundancyLength:   antiprompt.DefaultRedundancyLength,
		SuppressCommentary: true,
	}
}

// Merge applies non-zero values from source into c. SuppressCommentary is
// not merged because its zero value is meaningful; decode onto defaults
// to change it.
func (c *GenerationConfig) Merge(source *GenerationConfig) {
	if source.ModelPath != "" {
		c.ModelPath = source.ModelPath
	}
	if source.ContextSize > 0 {
		c.ContextSize = source.ContextSize
	}
	if source.GPULayers > 0 {
		c.GPULayers = source.GPULayers
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
	if len(source.StopMarkers) > 0 {
		c.StopMarkers = slices.Clone(source.StopMarkers)
	}
	if source.RedundancyLength > 0 {
		c.RedundancyLength = source.RedundancyLength
	}
}

func (c GenerationConfig) clone() GenerationConfig {
	c.StopMarkers = slices.Clone(c.StopMarkers)
	return c
}

// ConversationSession is a Ready session: the system prelude rendered at
// Setup, the turn history, the loaded model and the configuration it was
// built from. Only the Kernel mutates its history.
type ConversationSession struct {
	history session.Session
	model   model.Model
	config  GenerationConfig
}

// ID returns the session identifier. Each Setup creates a new one.
func (s *ConversationSession) ID() string {
	return s.history.ID()
}

// Model returns the name of the loaded model.
func (s *ConversationSession) Model() string {
	return s.model.Name()
}

// Config returns a copy of the configuration the session was built from.
func (s *ConversationSession) Config() GenerationConfig {
	return s.config.clone()
}

// System returns the initial system messages.
func (s *ConversationSession) System() []protocol.Message {
	return s.history.System()
}

// Turns returns the user and assistant messages exchanged so far.
func (s *ConversationSession) Turns() []protocol.Message {
	return s.history.Turns()
}

// Messages returns the system messages followed by the turns.
func (s *ConversationSession) Messages() []protocol.Message {
	return s.history.Messages()
}
