package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/memory"
	"github.com/tailored-agentic-units/tinyagent/model/ollama"
	"github.com/tailored-agentic-units/tinyagent/observability"
	"github.com/tailored-agentic-units/tinyagent/tools"
)

// AgentConfig names the agent.
type AgentConfig struct {
	Name string `json:"name,omitempty" yaml:"name" toml:"name"`
	Role string `json:"role,omitempty" yaml:"role" toml:"role"`
}

// OutputConfig is the expected-output contract.
type OutputConfig struct {
	Format   string `json:"format,omitempty" yaml:"format" toml:"format"`
	Template string `json:"template,omitempty" yaml:"template" toml:"template"`
}

// PromptConfig supplies the prompt sections. Identity and role come from
// AgentConfig.
type PromptConfig struct {
	SystemMessage        string          `json:"system_message,omitempty" yaml:"system_message" toml:"system_message"`
	Context              string          `json:"context,omitempty" yaml:"context" toml:"context"`
	Tools                []protocol.Tool `json:"tools,omitempty" yaml:"tools" toml:"tools"`
	ToolsFile            string          `json:"tools_file,omitempty" yaml:"tools_file" toml:"tools_file"`
	Tasks                string          `json:"tasks,omitempty" yaml:"tasks" toml:"tasks"`
	Output               OutputConfig    `json:"output" yaml:"output" toml:"output"`
	SuppressionDirective string          `json:"suppression_directive,omitempty" yaml:"suppression_directive" toml:"suppression_directive"`
}

// Config holds everything needed to build a Kernel and set it up.
type Config struct {
	Agent      AgentConfig      `json:"agent" yaml:"agent" toml:"agent"`
	Prompt     PromptConfig     `json:"prompt" yaml:"prompt" toml:"prompt"`
	Generation GenerationConfig `json:"generation" yaml:"generation" toml:"generation"`
	Runtime    ollama.Config    `json:"runtime" yaml:"runtime" toml:"runtime"`
	Memory     memory.Config    `json:"memory" yaml:"memory" toml:"memory"`
	// Observers names registered observers; see observability.GetObserver.
	Observers []string `json:"observers,omitempty" yaml:"observers" toml:"observers"`
	LogLevel  string   `json:"log_level,omitempty" yaml:"log_level" toml:"log_level"`
}

// DefaultConfig returns a Config with defaults for all subsystems and no
// model selected.
func DefaultConfig() Config {
	return Config{
		Agent:      AgentConfig{Name: DefaultName, Role: DefaultRole},
		Generation: DefaultGenerationConfig(),
		Runtime:    ollama.DefaultConfig(),
		Memory:     memory.DefaultConfig(),
		Observers:  []string{"slog"},
		LogLevel:   "info",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	if source.Agent.Name != "" {
		c.Agent.Name = source.Agent.Name
	}
	if source.Agent.Role != "" {
		c.Agent.Role = source.Agent.Role
	}

	c.Prompt.merge(&source.Prompt)
	c.Generation.Merge(&source.Generation)
	c.Runtime.Merge(&source.Runtime)
	c.Memory.Merge(&source.Memory)

	if len(source.Observers) > 0 {
		c.Observers = slices.Clone(source.Observers)
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
}

func (p *PromptConfig) merge(source *PromptConfig) {
	if source.SystemMessage != "" {
		p.SystemMessage = source.SystemMessage
	}
	if source.Context != "" {
		p.Context = source.Context
	}
	if len(source.Tools) > 0 {
		p.Tools = slices.Clone(source.Tools)
	}
	if source.ToolsFile != "" {
		p.ToolsFile = source.ToolsFile
	}
	if source.Tasks != "" {
		p.Tasks = source.Tasks
	}
	if source.Output.Format != "" {
		p.Output.Format = source.Output.Format
	}
	if source.Output.Template != "" {
		p.Output.Template = source.Output.Template
	}
	if source.SuppressionDirective != "" {
		p.SuppressionDirective = source.SuppressionDirective
	}
}

// LoadConfig reads a config file onto the defaults and returns the result.
// The format follows the extension: .json, .yaml, .yml or .toml.
// Environment references such as ${OLLAMA_HOST} are expanded before
// parsing. Keys absent from the file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		err = json.Unmarshal([]byte(expanded), &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(expanded), &cfg)
	case ".toml":
		_, err = toml.Decode(expanded, &cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// FromConfig creates a Kernel from configuration: the Ollama runtime from
// Runtime, the document store from Memory, observers by name and the prompt
// sections from Prompt. Options are applied after and can replace any of
// them. The returned Kernel is Uninitialized; pass cfg.Generation to Setup.
func FromConfig(cfg *Config, opts ...Option) (*Kernel, error) {
	base := []Option{WithRuntime(ollama.New(cfg.Runtime))}

	if store := memory.NewStore(&cfg.Memory); store != nil {
		base = append(base, WithMemoryStore(store))
	}

	if len(cfg.Observers) > 0 {
		observer, err := observability.GetObservers(cfg.Observers...)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve observers: %w", err)
		}
		base = append(base, WithObserver(observer))
	}

	k := New(cfg.Agent.Name, cfg.Agent.Role, append(base, opts...)...)
	if err := cfg.Prompt.apply(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (p *PromptConfig) apply(k *Kernel) error {
	k.AddSystemMessage(p.SystemMessage)
	k.AddContext(p.Context)
	k.AddTasks(p.Tasks)
	k.AddSuppressionDirective(p.SuppressionDirective)

	if p.Output.Format != "" || p.Output.Template != "" {
		k.ExpectedOutput(p.Output.Format, p.Output.Template)
	}

	if len(p.Tools) == 0 && p.ToolsFile == "" {
		return nil
	}

	registry := tools.NewRegistry()
	for _, tool := range p.Tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool: %w", err)
		}
	}
	if p.ToolsFile != "" {
		if err := registry.LoadFile(p.ToolsFile); err != nil {
			return err
		}
	}
	return k.AddToolRegistry(registry)
}
