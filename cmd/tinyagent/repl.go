package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tailored-agentic-units/tinyagent/kernel"
)

// DefaultIntro is the first message sent when the loop starts.
const DefaultIntro = "Introduce yourself."

// REPL reads one user message per line and prints the agent's replies. A
// blank line or end of input ends the loop.
type REPL struct {
	Kernel *kernel.Kernel
	In     io.Reader
	Out    io.Writer
	// Stream prints chunks as they arrive instead of whole replies.
	Stream bool
	// Intro is sent before the first prompt; blank skips it.
	Intro string
	// TurnContext derives the context of one turn, so an interrupt can end
	// the turn without ending the loop. Nil uses the loop context.
	TurnContext func(ctx context.Context) (context.Context, context.CancelFunc)
}

// Run drives the loop until the input ends, a blank line is read or ctx is
// done. Turn failures are reported on Out and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.In)
	input := r.Intro

	for first := true; ; first = false {
		if !first || strings.TrimSpace(input) == "" {
			fmt.Fprint(r.Out, "\nUser: ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			input = scanner.Text()
			if strings.TrimSpace(input) == "" {
				return nil
			}
		}

		r.turn(ctx, input)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// turn runs one exchange and reports any failure on Out.
func (r *REPL) turn(ctx context.Context, input string) {
	turnCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.TurnContext != nil {
		turnCtx, cancel = r.TurnContext(ctx)
	}
	defer cancel()

	var err error
	if r.Stream {
		for chunk, cerr := range r.Kernel.ChatStream(turnCtx, input) {
			if cerr != nil {
				err = cerr
				break
			}
			fmt.Fprint(r.Out, chunk)
		}
		fmt.Fprintln(r.Out)
	} else {
		var reply string
		reply, err = r.Kernel.Chat(turnCtx, input)
		fmt.Fprintln(r.Out, reply)
	}

	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(r.Out, "(interrupted)")
	case errors.Is(err, kernel.ErrSessionBusy):
		fmt.Fprintln(r.Out, "(the agent is busy, try again)")
	default:
		fmt.Fprintf(r.Out, "(error: %v)\n", err)
	}
}
