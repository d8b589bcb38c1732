package kernel

import "github.com/tailored-agentic-units/tinyagent/observability"

// Kernel event types emitted during setup and generation.
const (
	EventSetupStart     observability.EventType = "kernel.setup.start"
	EventSetupComplete  observability.EventType = "kernel.setup.complete"
	EventSetupCleared   observability.EventType = "kernel.setup.cleared"
	EventSetupFailed    observability.EventType = "kernel.setup.failed"
	EventContextLoaded  observability.EventType = "kernel.context.loaded"
	EventContextSkipped observability.EventType = "kernel.context.skipped"
	EventTurnStart      observability.EventType = "kernel.turn.start"
	EventTurnChunk      observability.EventType = "kernel.turn.chunk"
	EventTurnStopped    observability.EventType = "kernel.turn.stopped"
	EventTurnComplete   observability.EventType = "kernel.turn.complete"
	EventTurnCanceled   observability.EventType = "kernel.turn.canceled"
	EventTurnBusy       observability.EventType = "kernel.turn.busy"
	EventError          observability.EventType = "kernel.error"
)
