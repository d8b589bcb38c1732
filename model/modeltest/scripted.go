// Package modeltest provides a deterministic in-memory model runtime for
// tests. Each Generate call plays back the next scripted Reply.
package modeltest

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/model"
)

// Reply configures one generation: the raw chunks to stream, then an
// optional error.
type Reply struct {
	Chunks []string
	Err    error
}

// Chunks is shorthand for a Reply that streams the given chunks.
func Chunks(chunks ...string) Reply {
	return Reply{Chunks: chunks}
}

// Request records one Generate call.
type Request struct {
	Messages []protocol.Message
	Options  model.GenerateOptions
}

// Runtime hands out a single scripted Model.
type Runtime struct {
	mu      sync.Mutex
	model   *Model
	loadErr error
	loads   []model.LoadOptions
}

var _ model.Runtime = (*Runtime)(nil)

// NewRuntime creates a Runtime that loads m for any path.
func NewRuntime(m *Model) *Runtime {
	return &Runtime{model: m}
}

// FailLoads makes subsequent Load calls fail with err wrapped in
// model.ErrModelLoad. A nil err restores normal loading.
func (r *Runtime) FailLoads(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadErr = err
}

func (r *Runtime) Load(_ context.Context, opts model.LoadOptions) (model.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loads = append(r.loads, opts)
	if r.loadErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrModelLoad, opts.Path, r.loadErr)
	}
	return r.model, nil
}

// Loads returns the options of every Load call so far.
func (r *Runtime) Loads() []model.LoadOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.loads)
}

// Model is a scripted model.Model.
type Model struct {
	name string

	mu       sync.Mutex
	replies  []Reply
	index    int
	requests []Request
	started  chan struct{}
	release  chan struct{}
}

var _ model.Model = (*Model)(nil)

// NewModel creates a Model that plays back replies in order.
func NewModel(name string, replies ...Reply) *Model {
	return &Model{name: name, replies: slices.Clone(replies)}
}

// Script appends more replies.
func (m *Model) Script(replies ...Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

// Gate makes the next Generate calls pause before their first chunk. The
// started channel receives once per paused call; release lets every paused
// and future call proceed.
func (m *Model) Gate() (started <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = make(chan struct{}, 16)
	m.release = make(chan struct{})

	var once sync.Once
	rel := m.release
	return m.started, func() { once.Do(func() { close(rel) }) }
}

// Requests returns every recorded Generate call.
func (m *Model) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) Generate(ctx context.Context, messages []protocol.Message, opts model.GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m.mu.Lock()
		m.requests = append(m.requests, Request{
			Messages: slices.Clone(messages),
			Options:  opts,
		})
		started, release := m.started, m.release
		var reply Reply
		exhausted := m.index >= len(m.replies)
		if !exhausted {
			reply = m.replies[m.index]
			m.index++
		}
		m.mu.Unlock()

		if started != nil {
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}

		if exhausted {
			yield("", fmt.Errorf("script exhausted at call %d", len(m.Requests())))
			return
		}

		for _, chunk := range reply.Chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if reply.Err != nil {
			yield("", reply.Err)
		}
	}
}
