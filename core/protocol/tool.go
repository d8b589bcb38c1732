package protocol

// Tool describes a function the model may ask the caller to invoke. Only the
// metadata is carried into the system prompt; invocation happens elsewhere.
// Parameters uses JSON Schema format to describe the function's input.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
