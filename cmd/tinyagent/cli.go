package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/tailored-agentic-units/tinyagent/kernel"
)

// CLI is the command line of tinyagent. Flags override values read from
// the config file.
type CLI struct {
	Config string `short:"c" type:"path" help:"Config file (.json, .yaml, .yml or .toml)."`

	Model   string `short:"m" help:"Model to load." env:"TINYAGENT_MODEL"`
	Host    string `help:"Base URL of the Ollama server." env:"OLLAMA_HOST"`
	Name    string `help:"Agent name."`
	Role    string `help:"Agent role."`
	Context string `type:"path" help:"Directory of context documents."`
	Tools   string `type:"path" help:"JSON file with tool definitions."`

	Stream bool   `help:"Print replies as they are generated."`
	Watch  bool   `help:"Rebuild the session when context documents change."`
	Intro  string `default:"${intro}" help:"First message sent to the agent; empty to skip."`

	LogLevel string `help:"Log level (trace, debug, info, warn, error)."`
	LogFile  string `type:"path" help:"Also write JSON logs to this file."`
}

// config loads the config file, or the defaults when none is given, and
// applies flag overrides.
func (c *CLI) config() (*kernel.Config, error) {
	cfg := kernel.DefaultConfig()
	if c.Config != "" {
		loaded, err := kernel.LoadConfig(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	var overrides kernel.Config
	overrides.Agent.Name = c.Name
	overrides.Agent.Role = c.Role
	overrides.Generation.ModelPath = c.Model
	overrides.Runtime.BaseURL = c.Host
	overrides.Memory.Path = c.Context
	overrides.Prompt.ToolsFile = c.Tools
	overrides.LogLevel = c.LogLevel
	cfg.Merge(&overrides)

	return &cfg, nil
}

// Run builds the kernel, prepares the session and drives the chat loop on
// in and out until the input ends. Logs go to errOut. Options are passed to
// kernel.FromConfig.
func (c *CLI) Run(ctx context.Context, in io.Reader, out, errOut io.Writer, opts ...kernel.Option) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	lvl, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	level.Set(lvl)

	logger, closeLog, err := newLogger(errOut, c.LogFile, level)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	k, err := kernel.FromConfig(cfg, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Please wait for the moment. I'm getting ready now...")
	if cfg.Generation.ModelPath == "" {
		logger.Warn("no model selected; set --model or generation.model_path")
	}
	if err := k.Setup(ctx, cfg.Generation); err != nil {
		logger.Error("setup failed", "error", err)
	}

	if c.Watch && cfg.Memory.Path != "" {
		rebuild := func(ctx context.Context) error {
			return k.Setup(ctx, cfg.Generation)
		}
		if err := watchContext(ctx, cfg.Memory.Path, rebuild); err != nil {
			logger.Warn("context watch disabled", "error", err)
		}
	}

	repl := &REPL{
		Kernel: k,
		In:     in,
		Out:    out,
		Stream: c.Stream,
		Intro:  c.Intro,
		TurnContext: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
	return repl.Run(ctx)
}
