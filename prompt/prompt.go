// Package prompt assembles the layered system prompt. Sections are supplied
// independently and in any order; Render always emits them in the fixed
// Kind order, each wrapped in its kind-specific framing.
package prompt

import (
	"fmt"
	"strings"
	"sync"
)

// Kind identifies a prompt section. The numeric order of the constants is
// the order in which sections are rendered.
type Kind int

const (
	Identity Kind = iota
	Role
	SystemMessage
	Context
	Tools
	Tasks
	OutputFormat
	SuppressionDirective
)

// Kinds returns every section kind in render order.
func Kinds() []Kind {
	return []Kind{
		Identity,
		Role,
		SystemMessage,
		Context,
		Tools,
		Tasks,
		OutputFormat,
		SuppressionDirective,
	}
}

func (k Kind) String() string {
	switch k {
	case Identity:
		return "identity"
	case Role:
		return "role"
	case SystemMessage:
		return "system_message"
	case Context:
		return "context"
	case Tools:
		return "tools"
	case Tasks:
		return "tasks"
	case OutputFormat:
		return "output_format"
	case SuppressionDirective:
		return "suppression_directive"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const DefaultOutputFormat = "json"

// Section is one rendered system message.
type Section struct {
	Kind Kind
	Text string
}

// Builder holds at most one raw value per Kind. The zero value is not
// usable; call New. All methods are safe for concurrent use.
type Builder struct {
	mu       sync.RWMutex
	sections map[Kind]string
	format   string
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{sections: make(map[Kind]string)}
}

// Set stores text under kind, replacing any previous value. Blank text is
// ignored and the existing value is kept. Unknown kinds are ignored.
func (b *Builder) Set(kind Kind, text string) {
	if strings.TrimSpace(text) == "" || kind < Identity || kind > SuppressionDirective {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sections[kind] = text
	if kind == OutputFormat {
		b.format = ""
	}
}

// Get returns the raw value stored under kind.
func (b *Builder) Get(kind Kind) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.sections[kind]
	return text, ok
}

// ExpectedOutput sets the OutputFormat section from a format name and an
// optional template. A blank format falls back to DefaultOutputFormat.
func (b *Builder) ExpectedOutput(format, template string) {
	format = strings.TrimSpace(format)
	if format == "" {
		format = DefaultOutputFormat
	}

	text := format
	if strings.TrimSpace(template) != "" {
		text += " with the template: " + template
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sections[OutputFormat] = text
	b.format = format
}

// Format returns the output format name recorded by ExpectedOutput. When
// the OutputFormat section was set as raw text the name is unknown and the
// result is empty.
func (b *Builder) Format() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.format
}

// Clone returns an independent copy of b.
func (b *Builder) Clone() *Builder {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c := &Builder{
		sections: make(map[Kind]string, len(b.sections)),
		format:   b.format,
	}
	for k, v := range b.sections {
		c.sections[k] = v
	}
	return c
}

// Render returns the stored sections in Kind order with their framing
// applied. It has no side effects.
func (b *Builder) Render() []Section {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Section, 0, len(b.sections))
	for _, kind := range Kinds() {
		text, ok := b.sections[kind]
		if !ok {
			continue
		}
		out = append(out, Section{Kind: kind, Text: frame(kind, text)})
	}
	return out
}

// Texts returns the rendered section texts in order.
func Texts(sections []Section) []string {
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Text
	}
	return texts
}

// SuppressionText is the directive asking the model for bare output in the
// given format.
func SuppressionText(format string) string {
	return fmt.Sprintf("Return only the %s output. Do not include any additional comments or notes.", format)
}

func frame(kind Kind, text string) string {
	switch kind {
	case Identity:
		return fmt.Sprintf("As a bot agent, your name is %s.", text)
	case Role:
		return fmt.Sprintf("You are a bot agent and your role is %s.", text)
	case Context:
		return "Context Data:\n" + indent(text)
	case Tools:
		return "Tools Data:\n" + indent(text)
	case Tasks:
		return "Your primary role's tasks are as follows:\n" + text
	case OutputFormat:
		return "Expected output format: " + text
	default:
		return text
	}
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "    " + line
		}
	}
	return strings.Join(lines, "\n")
}
