package kernel

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/tailored-agentic-units/tinyagent/antiprompt"
	"github.com/tailored-agentic-units/tinyagent/core/protocol"
	"github.com/tailored-agentic-units/tinyagent/model"
	"github.com/tailored-agentic-units/tinyagent/observability"
)

// Chat runs one turn and returns the whole filtered reply.
//
// Blank input returns MessageUnreadable and an Uninitialized kernel returns
// MessageNotConfigured, both with a nil error. A turn requested while
// another is generating returns ErrSessionBusy. If ctx is canceled the text
// produced so far is returned with ctx.Err().
func (k *Kernel) Chat(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return MessageUnreadable, nil
	}

	var reply strings.Builder
	for chunk, err := range k.stream(ctx, input, "kernel.Chat") {
		if errors.Is(err, errNotReady) {
			return MessageNotConfigured, nil
		}
		if err != nil {
			return reply.String(), err
		}
		reply.WriteString(chunk)
	}
	return reply.String(), nil
}

// ChatStream runs one turn and yields filtered chunks as they become safe
// to emit.
//
// Blank input yields MessageUnreadable as the only item. An Uninitialized
// kernel yields nothing. Errors, including ErrSessionBusy, runtime failures
// and ctx.Err() on cancellation, arrive as the final item with an empty
// chunk. Breaking out of the loop ends the turn and keeps the text received
// so far as the reply.
func (k *Kernel) ChatStream(ctx context.Context, input string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if strings.TrimSpace(input) == "" {
			yield(MessageUnreadable, nil)
			return
		}

		for chunk, err := range k.stream(ctx, input, "kernel.ChatStream") {
			if errors.Is(err, errNotReady) {
				return
			}
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// stream is the turn core shared by Chat and ChatStream. It holds the
// session lock for the whole turn, so raw chunks from two turns never reach
// one filter.
func (k *Kernel) stream(ctx context.Context, input, source string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		select {
		case k.sem <- struct{}{}:
		default:
			k.observer.OnEvent(ctx, observability.Event{
				Type:      EventTurnBusy,
				Level:     observability.LevelWarning,
				Timestamp: time.Now(),
				Source:    source,
			})
			yield("", ErrSessionBusy)
			return
		}
		defer func() { <-k.sem }()

		sess, ok := k.Session()
		if !ok {
			yield("", errNotReady)
			return
		}

		var turnErr error
		ctx, span := k.startTurnSpan(ctx, sess, source)
		defer func() { endSpan(span, turnErr) }()

		t := &turn{
			kernel: k,
			sess:   sess,
			source: source,
			user:   protocol.NewMessage(protocol.RoleUser, input),
			filter: antiprompt.New(sess.config.StopMarkers, sess.config.RedundancyLength),
			yield:  yield,
			start:  time.Now(),
		}
		turnErr = t.run(ctx)
	}
}

// turn is the state of one generation against a session.
type turn struct {
	kernel *Kernel
	sess   *ConversationSession
	source string
	user   protocol.Message
	filter *antiprompt.Filter
	yield  func(string, error) bool
	start  time.Time

	reply  strings.Builder
	chunks int
}

func (t *turn) run(ctx context.Context) error {
	k := t.kernel
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventTurnStart,
		Level:     observability.LevelInfo,
		Timestamp: t.start,
		Source:    t.source,
		Data: map[string]any{
			"session_id":   t.sess.ID(),
			"input_length": len(t.user.Content),
		},
	})

	messages := append(t.sess.history.Messages(), t.user)
	opts := model.GenerateOptions{
		MaxTokens: t.sess.config.MaxTokens,
		Stop:      t.filter.Markers(),
	}

	for raw, err := range t.sess.model.Generate(ctx, messages, opts) {
		if cerr := ctx.Err(); cerr != nil {
			return t.fail(ctx, cerr)
		}
		if err != nil {
			return t.fail(ctx, err)
		}

		safe, stop := t.filter.Write(raw)
		if !t.emit(ctx, safe) {
			t.commit(ctx, false)
			return nil
		}
		if stop {
			k.observer.OnEvent(ctx, observability.Event{
				Type:      EventTurnStopped,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    t.source,
				Data:      map[string]any{"session_id": t.sess.ID()},
			})
			t.commit(ctx, true)
			return nil
		}
	}

	if cerr := ctx.Err(); cerr != nil {
		return t.fail(ctx, cerr)
	}
	t.emit(ctx, t.filter.Flush())
	t.commit(ctx, false)
	return nil
}

// emit forwards a non-empty safe chunk to the caller and reports whether
// the caller wants more.
func (t *turn) emit(ctx context.Context, chunk string) bool {
	if chunk == "" {
		return true
	}
	t.reply.WriteString(chunk)
	t.chunks++
	t.kernel.observer.OnEvent(ctx, observability.Event{
		Type:      EventTurnChunk,
		Level:     observability.LevelTrace,
		Timestamp: time.Now(),
		Source:    t.source,
		Data:      map[string]any{"length": len(chunk)},
	})
	return t.yield(chunk, nil)
}

// commit records the turn in the session history.
func (t *turn) commit(ctx context.Context, stopped bool) {
	reply := t.reply.String()
	t.sess.history.AddMessage(t.user)
	t.sess.history.AddMessage(protocol.NewMessage(protocol.RoleAssistant, reply))

	t.kernel.observer.OnEvent(ctx, observability.Event{
		Type:      EventTurnComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    t.source,
		Data: map[string]any{
			"session_id":   t.sess.ID(),
			"chunks":       t.chunks,
			"reply_length": len(reply),
			"stopped":      stopped,
			"duration":     time.Since(t.start),
		},
	})
}

// fail ends the turn without touching the history and yields err as the
// final item.
func (t *turn) fail(ctx context.Context, err error) error {
	event := EventError
	level := observability.LevelError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		event = EventTurnCanceled
		level = observability.LevelInfo
	}
	t.kernel.observer.OnEvent(ctx, observability.Event{
		Type:      event,
		Level:     level,
		Timestamp: time.Now(),
		Source:    t.source,
		Data: map[string]any{
			"session_id": t.sess.ID(),
			"chunks":     t.chunks,
			"error":      err.Error(),
		},
	})
	t.yield("", err)
	return err
}
