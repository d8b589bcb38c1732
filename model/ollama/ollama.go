// Package ollama runs models through a local Ollama server. Loading warms
// the model into memory with the requested context size and GPU layer
// count; generation streams newline-delimited JSON chat chunks.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/model"
)

const (
	DefaultBaseURL   = "http://localhost:11434"
	DefaultKeepAlive = "5m"
	DefaultTimeout   = 5 * time.Minute
)

// Config holds Ollama connection settings.
type Config struct {
	BaseURL   string        `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	KeepAlive string        `json:"keep_alive,omitempty" yaml:"keep_alive,omitempty" toml:"keep_alive,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// DefaultConfig returns settings for a server on the default local port.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		KeepAlive: DefaultKeepAlive,
		Timeout:   DefaultTimeout,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.KeepAlive != "" {
		c.KeepAlive = source.KeepAlive
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
}

// Runtime implements model.Runtime against an Ollama server.
type Runtime struct {
	baseURL    string
	keepAlive  string
	httpClient *http.Client
}

var _ model.Runtime = (*Runtime)(nil)

// New creates a Runtime from configuration. Zero fields fall back to the
// defaults. A base URL without a scheme, as OLLAMA_HOST is often written,
// is treated as http.
func New(cfg Config) *Runtime {
	full := DefaultConfig()
	full.Merge(&cfg)

	base := strings.TrimRight(full.BaseURL, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return &Runtime{
		baseURL:    base,
		keepAlive:  full.KeepAlive,
		httpClient: &http.Client{Timeout: full.Timeout},
	}
}

type options struct {
	NumCtx     int      `json:"num_ctx,omitempty"`
	NumGPU     int      `json:"num_gpu"`
	NumPredict int      `json:"num_predict,omitempty"`
	Stop       []string `json:"stop,omitempty"`
}

type generateRequest struct {
	Model     string   `json:"model"`
	Stream    bool     `json:"stream"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Options   *options `json:"options,omitempty"`
}

type chatRequest struct {
	Model     string             `json:"model"`
	Messages  []protocol.Message `json:"messages"`
	Stream    bool               `json:"stream"`
	KeepAlive string             `json:"keep_alive,omitempty"`
	Options   *options           `json:"options,omitempty"`
}

type chatChunk struct {
	Model   string           `json:"model"`
	Message protocol.Message `json:"message"`
	Done    bool             `json:"done"`
	Error   string           `json:"error,omitempty"`
}

// Load asks the server to load the model into memory. An empty-prompt
// generate request loads the weights without producing output, so a missing
// model or an impossible context size fails here rather than on the first
// turn.
func (r *Runtime) Load(ctx context.Context, opts model.LoadOptions) (model.Model, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: empty model path", model.ErrModelLoad)
	}

	m := &Model{
		runtime: r,
		name:    opts.Path,
		numCtx:  opts.ContextSize,
		numGPU:  opts.GPULayers,
	}

	resp, err := r.post(ctx, "/api/generate", generateRequest{
		Model:     m.name,
		Stream:    false,
		KeepAlive: r.keepAlive,
		Options:   &options{NumCtx: m.numCtx, NumGPU: m.numGPU},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrModelLoad, m.name, err)
	}
	defer resp.Body.Close()

	var chunk chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %s: decode response: %v", model.ErrModelLoad, m.name, err)
	}
	if chunk.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", model.ErrModelLoad, m.name, chunk.Error)
	}

	return m, nil
}

func (r *Runtime) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return resp, nil
}

// Model is a model loaded on an Ollama server.
type Model struct {
	runtime *Runtime
	name    string
	numCtx  int
	numGPU  int
}

var _ model.Model = (*Model)(nil)

func (m *Model) Name() string {
	return m.name
}

// Generate streams the assistant reply chunk by chunk. Breaking out of the
// loop closes the response body, which cancels the server-side generation.
func (m *Model) Generate(ctx context.Context, messages []protocol.Message, opts model.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := m.runtime.post(ctx, "/api/chat", chatRequest{
			Model:     m.name,
			Messages:  messages,
			Stream:    true,
			KeepAlive: m.runtime.keepAlive,
			Options: &options{
				NumCtx:     m.numCtx,
				NumGPU:     m.numGPU,
				NumPredict: opts.MaxTokens,
				Stop:       opts.Stop,
			},
		})
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk chatChunk
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					return
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield("", fmt.Errorf("decode stream chunk: %w", err))
				return
			}

			if chunk.Error != "" {
				yield("", fmt.Errorf("stream error: %s", chunk.Error))
				return
			}

			if chunk.Message.Content != "" {
				if !yield(chunk.Message.Content, nil) {
					return
				}
			}

			if chunk.Done {
				return
			}
		}
	}
}
