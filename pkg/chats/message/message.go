// Package message defines the Message type exchanged in LLM conversations.
package message

import (
	"strings"

	"github.com/specsmith/specsmith/pkg/chats/content"
	"github.com/specsmith/specsmith/pkg/chats/role"
)

// Message is a single conversation entry: who sent it, in what role, and its
// ordered content parts. Metadata carries free-form annotations (model name,
// token counts) that should not influence the conversation itself.
type Message struct {
	Sender   string
	Role     role.Role
	Parts    []content.Part
	Metadata map[string]any
}

// New creates a Message with the given sender, role, and content parts.
func New(sender string, r role.Role, parts ...content.Part) Message {
	return Message{Sender: sender, Role: r, Parts: parts}
}

// NewText creates a Message with a single text content part.
func NewText(sender string, r role.Role, text string) Message {
	return New(sender, r, content.Text{Text: text})
}

// TextContent concatenates all text parts of the message in order.
// Non-text parts are skipped.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// SetMeta stores a metadata value under key, allocating the map on first use.
func (m *Message) SetMeta(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// GetMeta returns the metadata value for key and whether it was present.
func (m Message) GetMeta(key string) (any, bool) {
	v, ok := m.Metadata[key]
	return v, ok
}
