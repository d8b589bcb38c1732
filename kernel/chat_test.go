package kernel_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tailored-agentic-units/tinyagent/antiprompt"
	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/kernel"
	"github.com/tailored-agentic-units/tinyagent/model/modeltest"
	"github.com/tailored-agentic-units/tinyagent/observability"
)

type item struct {
	chunk string
	err   error
}

func collect(ctx context.Context, k *kernel.Kernel, input string) []item {
	var items []item
	for chunk, err := range k.ChatStream(ctx, input) {
		items = append(items, item{chunk, err})
	}
	return items
}

func TestChat_BlankInput(t *testing.T) {
	k, _ := newKernel(t, modeltest.NewModel("m"))

	for _, state := range []string{"uninitialized", "ready"} {
		if state == "ready" {
			mustSetup(t, k, genConfig())
		}
		for _, input := range []string{"", "   ", "\n\t"} {
			got, err := k.Chat(context.Background(), input)
			if err != nil || got != kernel.MessageUnreadable {
				t.Errorf("%s: Chat(%q) = %q, %v; want %q", state, input, got, err, kernel.MessageUnreadable)
			}

			items := collect(context.Background(), k, input)
			want := []item{{kernel.MessageUnreadable, nil}}
			if !slices.Equal(items, want) {
				t.Errorf("%s: ChatStream(%q) = %v, want %v", state, input, items, want)
			}
		}
	}
}

func TestChat_Uninitialized(t *testing.T) {
	k, _ := newKernel(t, modeltest.NewModel("m"))

	got, err := k.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != kernel.MessageNotConfigured {
		t.Errorf("got %q, want %q", got, kernel.MessageNotConfigured)
	}

	if items := collect(context.Background(), k, "hello"); len(items) != 0 {
		t.Errorf("ChatStream() on Uninitialized session yielded %v, want nothing", items)
	}
}

func TestChat_Reply(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{
			name:   "natural end flushes held text",
			chunks: []string{"Hello", " there", "!"},
			want:   "Hello there!",
		},
		{
			name:   "marker split across chunks",
			chunks: []string{"Hi", " friend.", "\nUs", "er: what next?"},
			want:   "Hi friend.\n",
		},
		{
			name:   "marker in first chunk",
			chunks: []string{"Assistant: hello"},
			want:   "",
		},
		{
			name:   "end of turn token",
			chunks: []string{"Done.<|end", "_of_turn|>ignored"},
			want:   "Done.",
		},
		{
			name:   "partial marker at end is released",
			chunks: []string{"Ask the User"},
			want:   "Ask the User",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := modeltest.NewModel("m", modeltest.Chunks(tt.chunks...))
			k, _ := newKernel(t, m)
			mustSetup(t, k, genConfig())

			got, err := k.Chat(context.Background(), "hello")
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatStream_MatchesChat(t *testing.T) {
	chunks := []string{"The ans", "wer is 4", "2.\nUse", "r: and", " more"}

	m := modeltest.NewModel("m", modeltest.Chunks(chunks...), modeltest.Chunks(chunks...))
	k, _ := newKernel(t, m)
	mustSetup(t, k, genConfig())

	whole, err := k.Chat(context.Background(), "q")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	var streamed string
	for _, it := range collect(context.Background(), k, "q") {
		if it.err != nil {
			t.Fatalf("ChatStream() error = %v", it.err)
		}
		if it.chunk == "" {
			t.Error("ChatStream() yielded an empty chunk")
		}
		streamed += it.chunk
	}

	if whole != "The answer is 42.\n" {
		t.Errorf("Chat() = %q, want %q", whole, "The answer is 42.\n")
	}
	if streamed != whole {
		t.Errorf("ChatStream() = %q, want %q", streamed, whole)
	}
}

func TestChatStream_IncrementalDelivery(t *testing.T) {
	m := modeltest.NewModel("m", modeltest.Chunks("one ", "two ", "three"))
	k, _ := newKernel(t, m)
	cfg := genConfig()
	cfg.RedundancyLength = 0
	mustSetup(t, k, cfg)

	items := collect(context.Background(), k, "count")
	want := []item{{"one ", nil}, {"two ", nil}, {"three", nil}}
	if !slices.Equal(items, want) {
		t.Errorf("got %v, want %v", items, want)
	}
}

func TestChat_History(t *testing.T) {
	m := modeltest.NewModel("m",
		modeltest.Chunks("First answer.\nUser: fake"),
		modeltest.Chunks("Second answer."),
	)
	k, _ := newKernel(t, m)
	sess := mustSetup(t, k, genConfig())
	system := sess.System()

	if _, err := k.Chat(context.Background(), "first"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := k.Chat(context.Background(), "second"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	wantTurns := []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "first"),
		protocol.NewMessage(protocol.RoleAssistant, "First answer.\n"),
		protocol.NewMessage(protocol.RoleUser, "second"),
		protocol.NewMessage(protocol.RoleAssistant, "Second answer."),
	}
	if got := sess.Turns(); !slices.Equal(got, wantTurns) {
		t.Errorf("got turns %v, want %v", got, wantTurns)
	}

	reqs := m.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	wantSecond := append(slices.Clone(system), wantTurns[:3]...)
	if !slices.Equal(reqs[1].Messages, wantSecond) {
		t.Errorf("second request messages = %v, want %v", reqs[1].Messages, wantSecond)
	}
	if reqs[0].Options.MaxTokens != 256 {
		t.Errorf("got max tokens %d, want 256", reqs[0].Options.MaxTokens)
	}
	if !slices.Equal(reqs[0].Options.Stop, antiprompt.DefaultMarkers) {
		t.Errorf("got stop %q, want %q", reqs[0].Options.Stop, antiprompt.DefaultMarkers)
	}
}

func TestChat_RuntimeError(t *testing.T) {
	streamErr := errors.New("connection reset")
	m := modeltest.NewModel("m", modeltest.Reply{Chunks: []string{"partial "}, Err: streamErr})
	k, _ := newKernel(t, m)
	cfg := genConfig()
	cfg.RedundancyLength = 0
	sess := mustSetup(t, k, cfg)

	got, err := k.Chat(context.Background(), "hello")
	if !errors.Is(err, streamErr) {
		t.Fatalf("Chat() error = %v, want %v", err, streamErr)
	}
	if got != "partial " {
		t.Errorf("got %q, want the text before the failure", got)
	}
	if len(sess.Turns()) != 0 {
		t.Errorf("failed turn should not be recorded, got %d turns", len(sess.Turns()))
	}
}

func TestChatStream_RuntimeErrorIsLast(t *testing.T) {
	streamErr := errors.New("connection reset")
	m := modeltest.NewModel("m", modeltest.Reply{Chunks: []string{"a "}, Err: streamErr})
	k, _ := newKernel(t, m)
	cfg := genConfig()
	cfg.RedundancyLength = 0
	mustSetup(t, k, cfg)

	items := collect(context.Background(), k, "hello")
	if len(items) != 2 {
		t.Fatalf("got %v, want a chunk then the error", items)
	}
	if items[0] != (item{"a ", nil}) {
		t.Errorf("got first item %v", items[0])
	}
	if items[1].chunk != "" || !errors.Is(items[1].err, streamErr) {
		t.Errorf("got last item %v, want (\"\", %v)", items[1], streamErr)
	}
}

func TestChatStream_Cancellation(t *testing.T) {
	m := modeltest.NewModel("m", modeltest.Chunks("alpha ", "beta ", "gamma"))
	k, _ := newKernel(t, m)
	cfg := genConfig()
	cfg.RedundancyLength = 0
	sess := mustSetup(t, k, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var items []item
	for chunk, err := range k.ChatStream(ctx, "hello") {
		items = append(items, item{chunk, err})
		cancel()
	}

	want := []item{{"alpha ", nil}, {"", context.Canceled}}
	if !slices.Equal(items, want) {
		t.Errorf("got %v, want %v", items, want)
	}
	if len(sess.Turns()) != 0 {
		t.Errorf("canceled turn should not be recorded, got %d turns", len(sess.Turns()))
	}

	// The lock is released: a new turn can run.
	m.Script(modeltest.Chunks("again"))
	if got, err := k.Chat(context.Background(), "hello"); err != nil || got != "again" {
		t.Errorf("Chat() after cancel = %q, %v; want %q", got, err, "again")
	}
}

func TestChat_CanceledWhileWaitingForModel(t *testing.T) {
	m := modeltest.NewModel("m", modeltest.Chunks("never"))
	k, _ := newKernel(t, m)
	mustSetup(t, k, genConfig())

	started, release := m.Gate()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var got string
	var err error
	go func() {
		defer close(done)
		got, err = k.Chat(ctx, "hello")
	}()

	<-started
	cancel()
	<-done

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Chat() error = %v, want %v", err, context.Canceled)
	}
	if got != "" {
		t.Errorf("got %q, want no text", got)
	}
}

func TestChatStream_ConsumerBreak(t *testing.T) {
	m := modeltest.NewModel("m", modeltest.Chunks("one ", "two ", "three"))
	k, _ := newKernel(t, m)
	cfg := genConfig()
	cfg.RedundancyLength = 0
	sess := mustSetup(t, k, cfg)

	for chunk, err := range k.ChatStream(context.Background(), "count") {
		if err != nil || chunk != "one " {
			t.Fatalf("got %q, %v", chunk, err)
		}
		break
	}

	turns := sess.Turns()
	if len(turns) != 2 || turns[1].Content != "one " {
		t.Errorf("got turns %v, want the partial reply recorded", turns)
	}
}

func TestChat_Busy(t *testing.T) {
	m := modeltest.NewModel("m", modeltest.Chunks("first reply"))
	rec := &recorder{}
	k, _ := newKernel(t, m, kernel.WithObserver(rec))
	sess := mustSetup(t, k, genConfig())

	started, release := m.Gate()
	defer release()

	done := make(chan string, 1)
	go func() {
		got, _ := k.Chat(context.Background(), "first")
		done <- got
	}()
	<-started

	got, err := k.Chat(context.Background(), "second")
	if !errors.Is(err, kernel.ErrSessionBusy) {
		t.Errorf("Chat() error = %v, want %v", err, kernel.ErrSessionBusy)
	}
	if got != "" {
		t.Errorf("busy Chat() returned %q, want empty", got)
	}

	items := collect(context.Background(), k, "third")
	if len(items) != 1 || items[0].chunk != "" || !errors.Is(items[0].err, kernel.ErrSessionBusy) {
		t.Errorf("busy ChatStream() = %v, want a single ErrSessionBusy", items)
	}

	release()
	if got := <-done; got != "first reply" {
		t.Errorf("first Chat() = %q, want %q", got, "first reply")
	}
	if len(m.Requests()) != 1 {
		t.Errorf("busy calls reached the model: %d requests", len(m.Requests()))
	}
	if len(sess.Turns()) != 2 {
		t.Errorf("got %d turns, want only the first turn", len(sess.Turns()))
	}
	if !rec.has(kernel.EventTurnBusy) {
		t.Error("missing busy event")
	}
}

func TestSetup_WaitsForTurn(t *testing.T) {
	m := modeltest.NewModel("m", modeltest.Chunks("old session reply"))
	k, _ := newKernel(t, m)
	first := mustSetup(t, k, genConfig())

	started, release := m.Gate()
	defer release()

	chatDone := make(chan string, 1)
	go func() {
		got, _ := k.Chat(context.Background(), "hello")
		chatDone <- got
	}()
	<-started

	setupDone := make(chan error, 1)
	go func() {
		setupDone <- k.Setup(context.Background(), genConfig())
	}()

	select {
	case <-setupDone:
		t.Fatal("Setup() returned while a turn was generating")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	if got := <-chatDone; got != "old session reply" {
		t.Errorf("in-flight Chat() = %q, want %q", got, "old session reply")
	}
	if err := <-setupDone; err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if len(first.Turns()) != 2 {
		t.Errorf("in-flight turn should finish on the old session, got %d turns", len(first.Turns()))
	}
	second, _ := k.Session()
	if second.ID() == first.ID() || len(second.Turns()) != 0 {
		t.Error("Setup should install a fresh session after the turn")
	}
}

func TestChat_Events(t *testing.T) {
	rec := &recorder{}
	m := modeltest.NewModel("m", modeltest.Chunks("ok User: no"))
	k, _ := newKernel(t, m, kernel.WithObserver(rec))
	mustSetup(t, k, genConfig())

	if _, err := k.Chat(context.Background(), "hello"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	for _, typ := range []observability.EventType{
		kernel.EventTurnStart,
		kernel.EventTurnChunk,
		kernel.EventTurnStopped,
		kernel.EventTurnComplete,
	} {
		if !rec.has(typ) {
			t.Errorf("missing event %q", typ)
		}
	}
}
