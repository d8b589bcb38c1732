// Package model defines the boundary to the local generative-model runtime.
// The kernel depends only on these interfaces; concrete runtimes live in
// subpackages.
package model

import (
	"context"
	"errors"
	"iter"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
)

// ErrModelLoad wraps every failure to load weights or build a runtime
// context. Callers test for it with errors.Is.
var ErrModelLoad = errors.New("model load failed")

// LoadOptions selects the model and sizes its runtime context.
type LoadOptions struct {
	// Path is the model reference understood by the runtime: a weights file
	// path or a runtime-local model name.
	Path        string
	ContextSize int
	GPULayers   int // 0 runs CPU-only.
}

// GenerateOptions bounds one generation.
type GenerateOptions struct {
	MaxTokens int
	// Stop lists sequences at which the runtime may stop natively. Output
	// is still filtered by the caller; runtimes may ignore this.
	Stop []string
}

// Runtime loads models.
type Runtime interface {
	Load(ctx context.Context, opts LoadOptions) (Model, error)
}

// Model is a loaded model handle.
type Model interface {
	// Name identifies the loaded model.
	Name() string
	// Generate streams raw text chunks for the reply to messages, which hold
	// the system prelude, prior turns, and the new user message. The
	// sequence ends when the runtime finishes or on the first non-nil error.
	// Stopping iteration early must release the underlying request.
	Generate(ctx context.Context, messages []protocol.Message, opts GenerateOptions) iter.Seq2[string, error]
}
