package kernel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tailored-agentic-units/tinyagent/kernel"

// startSetupSpan starts a span for one Setup call.
func (k *Kernel) startSetupSpan(ctx context.Context, cfg GenerationConfig) (context.Context, trace.Span) {
	ctx, span := k.tracer.Start(ctx, "kernel.setup")
	span.SetAttributes(
		attribute.String("agent.name", k.name),
		attribute.String("model.path", cfg.ModelPath),
		attribute.Int("model.context_size", cfg.ContextSize),
		attribute.Int("model.gpu_layers", cfg.GPULayers),
	)
	return ctx, span
}

// startTurnSpan starts a span for one generation turn.
func (k *Kernel) startTurnSpan(ctx context.Context, sess *ConversationSession, source string) (context.Context, trace.Span) {
	ctx, span := k.tracer.Start(ctx, "kernel.turn")
	span.SetAttributes(
		attribute.String("session.id", sess.ID()),
		attribute.String("model.name", sess.model.Name()),
		attribute.String("turn.source", source),
		attribute.Int("turn.history", len(sess.history.Turns())),
	)
	return ctx, span
}

// endSpan records err, if any, and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
