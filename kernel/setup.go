package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/ingest"
	"github.com/tailored-agentic-units/tinyagent/memory"
	"github.com/tailored-agentic-units/tinyagent/model"
	"github.com/tailored-agentic-units/tinyagent/observability"
	"github.com/tailored-agentic-units/tinyagent/prompt"
	"github.com/tailored-agentic-units/tinyagent/session"
)

// Setup builds a new session from the current prompt sections and cfg,
// replacing the previous one and its history.
//
// A blank cfg.ModelPath clears the session and returns nil. A model load
// failure returns an error wrapping model.ErrModelLoad. Failing to read or
// convert the memory store documents also aborts Setup. In both cases the
// previous session stays in place. Setup waits for an in-flight turn to finish and returns ctx.Err()
// if ctx ends first; calling it from inside a ChatStream loop therefore
// blocks until ctx ends.
func (k *Kernel) Setup(ctx context.Context, cfg GenerationConfig) (err error) {
	select {
	case k.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-k.sem }()

	if strings.TrimSpace(cfg.ModelPath) == "" {
		k.swap(nil)
		k.observer.OnEvent(ctx, observability.Event{
			Type:      EventSetupCleared,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "kernel.Setup",
			Data:      map[string]any{"reason": "model path is blank"},
		})
		return nil
	}

	ctx, span := k.startSetupSpan(ctx, cfg)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventSetupStart,
		Level:     observability.LevelInfo,
		Timestamp: start,
		Source:    "kernel.Setup",
		Data: map[string]any{
			"model":        cfg.ModelPath,
			"context_size": cfg.ContextSize,
			"gpu_layers":   cfg.GPULayers,
		},
	})

	system, err := k.systemMessages(ctx, cfg)
	if err != nil {
		k.setupFailed(ctx, err)
		return err
	}

	m, err := k.runtime.Load(ctx, model.LoadOptions{
		Path:        cfg.ModelPath,
		ContextSize: cfg.ContextSize,
		GPULayers:   cfg.GPULayers,
	})
	if err != nil {
		if !errors.Is(err, model.ErrModelLoad) {
			err = fmt.Errorf("%w: %v", model.ErrModelLoad, err)
		}
		k.setupFailed(ctx, err)
		return err
	}

	sess := &ConversationSession{
		history: session.New(system),
		model:   m,
		config:  cfg.clone(),
	}
	k.swap(sess)

	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventSetupComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "kernel.Setup",
		Data: map[string]any{
			"session_id":      sess.ID(),
			"model":           m.Name(),
			"system_messages": len(system),
			"duration":        time.Since(start),
		},
	})

	return nil
}

func (k *Kernel) setupFailed(ctx context.Context, err error) {
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventSetupFailed,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    "kernel.Setup",
		Data:      map[string]any{"error": err.Error()},
	})
}

// systemMessages renders the prompt for a new session. The kernel's own
// builder is left untouched: store documents and the derived suppression
// directive go into a copy.
func (k *Kernel) systemMessages(ctx context.Context, cfg GenerationConfig) ([]protocol.Message, error) {
	b := k.prompt.Clone()

	if k.store != nil {
		docs, err := k.loadDocuments(ctx)
		if err != nil {
			return nil, err
		}
		if text := ingest.Join(docs); text != "" {
			if existing, ok := b.Get(prompt.Context); ok {
				text = existing + "\n\n" + text
			}
			b.Set(prompt.Context, text)
		}
	}

	if cfg.SuppressCommentary {
		_, hasFormat := b.Get(prompt.OutputFormat)
		_, hasDirective := b.Get(prompt.SuppressionDirective)
		if hasFormat && !hasDirective {
			format := b.Format()
			if format == "" {
				format = "expected"
			}
			b.Set(prompt.SuppressionDirective, prompt.SuppressionText(format))
		}
	}

	return protocol.SystemMessages(prompt.Texts(b.Render())...), nil
}

func (k *Kernel) loadDocuments(ctx context.Context) ([]ingest.Document, error) {
	entries, err := memory.LoadAll(ctx, k.store)
	if err != nil {
		return nil, fmt.Errorf("load context documents: %w", err)
	}

	docs := make([]ingest.Document, 0, len(entries))
	for _, e := range entries {
		if !ingest.Supported(e.Key) {
			k.observer.OnEvent(ctx, observability.Event{
				Type:      EventContextSkipped,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "kernel.Setup",
				Data:      map[string]any{"key": e.Key},
			})
			continue
		}

		doc, err := ingest.Extract(e.Key, e.Value)
		if err != nil {
			return nil, fmt.Errorf("load context documents: %w", err)
		}
		docs = append(docs, doc)
	}

	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventContextLoaded,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "kernel.Setup",
		Data: map[string]any{
			"documents": len(docs),
			"skipped":   len(entries) - len(docs),
		},
	})

	return docs, nil
}
