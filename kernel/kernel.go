// Package kernel owns the single conversation session of an agent and
// drives its turns. Prompt sections are collected with the Add* methods,
// Setup loads the model and builds the session from the rendered prompt,
// and Chat or ChatStream run one user turn through the stop-marker filter.
//
//	k := kernel.New("ChatBot", "Messenger")
//	k.AddTasks("Answer questions about opening hours.")
//	cfg := kernel.DefaultGenerationConfig()
//	cfg.ModelPath = "llama3.2"
//	if err := k.Setup(ctx, cfg); err != nil {
//		return err
//	}
//	reply, err := k.Chat(ctx, "When do you open?")
//
// A Kernel is safe for concurrent use. Only one turn runs at a time: a turn
// requested while another is generating fails with ErrSessionBusy. Setup
// waits for the in-flight turn to finish before replacing the session.
package kernel

import (
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/memory"
	"github.com/tailored-agentic-units/tinyagent/model"
	"github.com/tailored-agentic-units/tinyagent/model/ollama"
	"github.com/tailored-agentic-units/tinyagent/observability"
	"github.com/tailored-agentic-units/tinyagent/prompt"
	"github.com/tailored-agentic-units/tinyagent/tools"
)

// Default agent identity.
const (
	DefaultName = "ChatBot"
	DefaultRole = "Messenger"
)

// Option configures a Kernel after construction.
type Option func(*Kernel)

// WithRuntime overrides the default Ollama runtime.
func WithRuntime(r model.Runtime) Option {
	return func(k *Kernel) { k.runtime = r }
}

// WithMemoryStore grounds the agent with the documents in s. They are
// reloaded on every Setup and appended to the Context section.
func WithMemoryStore(s memory.Store) Option {
	return func(k *Kernel) { k.store = s }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(k *Kernel) { k.tracer = tp.Tracer(tracerName) }
}

// Kernel is the SessionManager and GenerationStream of one agent.
type Kernel struct {
	name     string
	role     string
	prompt   *prompt.Builder
	runtime  model.Runtime
	store    memory.Store
	observer observability.Observer
	tracer   trace.Tracer

	// sem is the session exclusivity lock. Turns acquire it without
	// waiting; Setup waits for it.
	sem chan struct{}

	mu     sync.RWMutex
	active *ConversationSession
}

// New creates a Kernel for an agent with the given name and role. Blank
// values fall back to DefaultName and DefaultRole. The session starts
// Uninitialized until Setup succeeds.
func New(name, role string, opts ...Option) *Kernel {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	if strings.TrimSpace(role) == "" {
		role = DefaultRole
	}

	k := &Kernel{
		name:     name,
		role:     role,
		prompt:   prompt.New(),
		runtime:  ollama.New(ollama.DefaultConfig()),
		observer: observability.NewSlogObserver(slog.Default()),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		sem:      make(chan struct{}, 1),
	}
	k.prompt.Set(prompt.Identity, name)
	k.prompt.Set(prompt.Role, role)

	for _, opt := range opts {
		opt(k)
	}

	return k
}

// Name returns the agent name.
func (k *Kernel) Name() string {
	return k.name
}

// Role returns the agent role.
func (k *Kernel) Role() string {
	return k.role
}

// AddSystemMessage sets the free-form system message section.
func (k *Kernel) AddSystemMessage(text string) {
	k.prompt.Set(prompt.SystemMessage, text)
}

// AddContext sets the retrieved-context section.
func (k *Kernel) AddContext(text string) {
	k.prompt.Set(prompt.Context, text)
}

// AddToolJSON sets the tool catalog section to a caller-rendered blob.
func (k *Kernel) AddToolJSON(text string) {
	k.prompt.Set(prompt.Tools, text)
}

// AddTools renders the tool definitions as JSON into the tool catalog
// section. An empty list leaves the section unchanged.
func (k *Kernel) AddTools(defs ...protocol.Tool) error {
	if len(defs) == 0 {
		return nil
	}
	text, err := tools.Render(defs)
	if err != nil {
		return err
	}
	k.prompt.Set(prompt.Tools, text)
	return nil
}

// AddToolRegistry renders every tool in r into the tool catalog section.
func (k *Kernel) AddToolRegistry(r *tools.Registry) error {
	return k.AddTools(r.List()...)
}

// AddTasks sets the task description section.
func (k *Kernel) AddTasks(text string) {
	k.prompt.Set(prompt.Tasks, text)
}

// ExpectedOutput sets the expected-output contract. A blank format means
// prompt.DefaultOutputFormat; template is optional.
func (k *Kernel) ExpectedOutput(format, template string) {
	k.prompt.ExpectedOutput(format, template)
}

// AddSuppressionDirective sets an explicit anti-commentary directive,
// replacing the one Setup would derive from the output format.
func (k *Kernel) AddSuppressionDirective(text string) {
	k.prompt.Set(prompt.SuppressionDirective, text)
}

// Sections returns the prompt sections as they currently render. Context
// documents from the memory store are added only at Setup.
func (k *Kernel) Sections() []prompt.Section {
	return k.prompt.Render()
}

// Session returns the Ready session, or false while Uninitialized.
func (k *Kernel) Session() (*ConversationSession, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active, k.active != nil
}

func (k *Kernel) swap(sess *ConversationSession) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = sess
}
