package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/model"
	"github.com/tailored-agentic-units/tinyagent/model/ollama"
)

type capturedRequest struct {
	Model    string             `json:"model"`
	Messages []protocol.Message `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  map[string]any     `json:"options"`
}

func newServer(t *testing.T, handler http.HandlerFunc) *ollama.Runtime {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return ollama.New(ollama.Config{BaseURL: srv.URL})
}

func decodeRequest(t *testing.T, r *http.Request) capturedRequest {
	t.Helper()
	var req capturedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return req
}

func TestLoad(t *testing.T) {
	var got capturedRequest
	rt := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("got path %q, want /api/generate", r.URL.Path)
		}
		got = decodeRequest(t, r)
		fmt.Fprint(w, `{"model":"gemma2:2b","done":true,"done_reason":"load"}`)
	})

	m, err := rt.Load(context.Background(), model.LoadOptions{
		Path:        "gemma2:2b",
		ContextSize: 1024,
		GPULayers:   0,
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Name() != "gemma2:2b" {
		t.Errorf("got name %q, want %q", m.Name(), "gemma2:2b")
	}
	if got.Model != "gemma2:2b" {
		t.Errorf("got model %q, want %q", got.Model, "gemma2:2b")
	}
	if got.Stream {
		t.Error("load request should not stream")
	}
	if got.Options["num_ctx"] != float64(1024) {
		t.Errorf("got num_ctx %v, want 1024", got.Options["num_ctx"])
	}
	if v, ok := got.Options["num_gpu"]; !ok || v != float64(0) {
		t.Errorf("got num_gpu %v (present %v), want explicit 0", v, ok)
	}
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "model not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"model \"missing\" not found"}`, http.StatusNotFound)
			},
		},
		{
			name: "error in body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"error":"insufficient memory"}`)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{not json`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newServer(t, tt.handler)

			_, err := rt.Load(context.Background(), model.LoadOptions{Path: "missing"})
			if !errors.Is(err, model.ErrModelLoad) {
				t.Errorf("got error %v, want ErrModelLoad", err)
			}
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	rt := ollama.New(ollama.Config{BaseURL: "http://127.0.0.1:0"})

	_, err := rt.Load(context.Background(), model.LoadOptions{Path: "  "})
	if !errors.Is(err, model.ErrModelLoad) {
		t.Errorf("got error %v, want ErrModelLoad", err)
	}
}

func TestLoad_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rt := ollama.New(ollama.Config{BaseURL: url})
	_, err := rt.Load(context.Background(), model.LoadOptions{Path: "m"})
	if !errors.Is(err, model.ErrModelLoad) {
		t.Errorf("got error %v, want ErrModelLoad", err)
	}
}

func TestLoad_HostWithoutScheme(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(streamHandler(t, &got))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	rt := ollama.New(ollama.Config{BaseURL: host + "/"})
	if _, err := rt.Load(context.Background(), model.LoadOptions{Path: "m"}); err != nil {
		t.Fatalf("Load with %q failed: %v", host, err)
	}
}

func streamHandler(t *testing.T, got *capturedRequest, lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			fmt.Fprint(w, `{"done":true}`)
		case "/api/chat":
			*got = decodeRequest(t, r)
			flusher, _ := w.(http.Flusher)
			for _, line := range lines {
				fmt.Fprintln(w, line)
				if flusher != nil {
					flusher.Flush()
				}
			}
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}
}

func loadModel(t *testing.T, rt *ollama.Runtime) model.Model {
	t.Helper()
	m, err := rt.Load(context.Background(), model.LoadOptions{Path: "m", ContextSize: 2048, GPULayers: 4})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return m
}

func TestGenerate_Stream(t *testing.T) {
	var got capturedRequest
	rt := newServer(t, streamHandler(t, &got,
		`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":false}`,
		`{"message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	))
	m := loadModel(t, rt)

	messages := []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "be brief"),
		protocol.NewMessage(protocol.RoleUser, "hi"),
	}

	var chunks []string
	for chunk, err := range m.Generate(context.Background(), messages, model.GenerateOptions{
		MaxTokens: 64,
		Stop:      []string{"User:"},
	}) {
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if strings.Join(chunks, "|") != "Hel|lo" {
		t.Errorf("got chunks %q, want [Hel lo]", chunks)
	}
	if !got.Stream {
		t.Error("chat request should stream")
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "hi" {
		t.Errorf("got messages %+v", got.Messages)
	}
	if got.Options["num_predict"] != float64(64) {
		t.Errorf("got num_predict %v, want 64", got.Options["num_predict"])
	}
	if got.Options["num_ctx"] != float64(2048) {
		t.Errorf("got num_ctx %v, want 2048", got.Options["num_ctx"])
	}
	if got.Options["num_gpu"] != float64(4) {
		t.Errorf("got num_gpu %v, want 4", got.Options["num_gpu"])
	}
	stop, _ := got.Options["stop"].([]any)
	if len(stop) != 1 || stop[0] != "User:" {
		t.Errorf("got stop %v, want [User:]", got.Options["stop"])
	}
}

func TestGenerate_StreamError(t *testing.T) {
	var got capturedRequest
	rt := newServer(t, streamHandler(t, &got,
		`{"message":{"role":"assistant","content":"par"},"done":false}`,
		`{"error":"out of memory"}`,
	))
	m := loadModel(t, rt)

	var chunks []string
	var lastErr error
	for chunk, err := range m.Generate(context.Background(), nil, model.GenerateOptions{}) {
		if err != nil {
			lastErr = err
			break
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 1 || chunks[0] != "par" {
		t.Errorf("got chunks %q, want [par]", chunks)
	}
	if lastErr == nil || !strings.Contains(lastErr.Error(), "out of memory") {
		t.Errorf("got error %v, want stream error", lastErr)
	}
}

func TestGenerate_HTTPError(t *testing.T) {
	rt := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/generate" {
			fmt.Fprint(w, `{"done":true}`)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	m := loadModel(t, rt)

	var errs int
	for _, err := range m.Generate(context.Background(), nil, model.GenerateOptions{}) {
		if err == nil {
			t.Fatal("expected an error element")
		}
		if !strings.Contains(err.Error(), "500") {
			t.Errorf("got error %v, want status 500", err)
		}
		errs++
	}
	if errs != 1 {
		t.Errorf("got %d error elements, want 1", errs)
	}
}

func TestGenerate_EarlyBreak(t *testing.T) {
	var got capturedRequest
	rt := newServer(t, streamHandler(t, &got,
		`{"message":{"role":"assistant","content":"a"},"done":false}`,
		`{"message":{"role":"assistant","content":"b"},"done":false}`,
		`{"message":{"role":"assistant","content":"c"},"done":true}`,
	))
	m := loadModel(t, rt)

	var chunks []string
	for chunk, err := range m.Generate(context.Background(), nil, model.GenerateOptions{}) {
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		chunks = append(chunks, chunk)
		break
	}

	if len(chunks) != 1 || chunks[0] != "a" {
		t.Errorf("got chunks %q, want [a]", chunks)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := ollama.DefaultConfig()
	cfg.Merge(&ollama.Config{BaseURL: "http://gpu-box:11434"})

	if cfg.BaseURL != "http://gpu-box:11434" {
		t.Errorf("got BaseURL %q", cfg.BaseURL)
	}
	if cfg.KeepAlive != ollama.DefaultKeepAlive {
		t.Errorf("got KeepAlive %q, want default preserved", cfg.KeepAlive)
	}
	if cfg.Timeout != ollama.DefaultTimeout {
		t.Errorf("got Timeout %v, want default preserved", cfg.Timeout)
	}
}
