// Package transport models the chat side of the system: inbound
// interaction events and the outbound messenger the flows speak
// through. It is deliberately platform-neutral; the flows only know
// channels, messages, controls and forms.
package transport

import "context"

// EventKind discriminates inbound events.
type EventKind string

const (
	EventFiling       EventKind = "filing"
	EventButtonPress  EventKind = "button_press"
	EventSelectChange EventKind = "select_change"
	EventFormSubmit   EventKind = "form_submit"
)

// Actor is the person behind an event.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// MessageRef addresses one message in one channel.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Event is one inbound interaction. Filing events carry Text and
// Attachments; control events carry a CorrelationID minted when the
// control was rendered, plus Values or Fields depending on kind.
type Event struct {
	Kind          EventKind         `json:"kind" enum:"filing,button_press,select_change,form_submit"`
	Actor         Actor             `json:"actor"`
	Origin        MessageRef        `json:"origin"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Text          string            `json:"text,omitempty"`
	Attachments   []string          `json:"attachments,omitempty"`
	Values        []string          `json:"values,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Button is one pressable control. CorrelationID round-trips through
// the platform and resolves to a stored context on press.
type Button struct {
	Label         string `json:"label"`
	Style         string `json:"style,omitempty"`
	CorrelationID string `json:"correlation_id"`
	Disabled      bool   `json:"disabled,omitempty"`
}

// Option is one entry of a select control.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// Select is a single-choice dropdown control.
type Select struct {
	Placeholder   string   `json:"placeholder,omitempty"`
	CorrelationID string   `json:"correlation_id"`
	Options       []Option `json:"options"`
}

// Field is one labeled line of card content.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Card is the renderable unit the flows emit: text plus optional
// fields and controls.
type Card struct {
	Title   string   `json:"title,omitempty"`
	Body    string   `json:"body,omitempty"`
	Fields  []Field  `json:"fields,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
	Select  *Select  `json:"select,omitempty"`
}

// Input is one form field.
type Input struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Value     string `json:"value,omitempty"`
	Required  bool   `json:"required,omitempty"`
	Paragraph bool   `json:"paragraph,omitempty"`
}

// Form is a modal opened in response to a control press.
type Form struct {
	Title         string  `json:"title"`
	CorrelationID string  `json:"correlation_id"`
	Inputs        []Input `json:"inputs"`
}

// Messenger is the outbound half of the transport. Implementations
// deliver to the actual chat platform; tests use Recorder.
type Messenger interface {
	// Send posts a card to a channel.
	Send(ctx context.Context, channelID string, card Card) (MessageRef, error)
	// Edit replaces the content of an existing message.
	Edit(ctx context.Context, ref MessageRef, card Card) error
	// Reply posts a card threaded under an existing message.
	Reply(ctx context.Context, ref MessageRef, card Card) (MessageRef, error)
	// Ephemeral shows text privately to one actor, off the record.
	Ephemeral(ctx context.Context, ref MessageRef, actorID, text string) error
	// OpenForm presents a modal to the actor of the current event.
	OpenForm(ctx context.Context, event Event, form Form) error
	// DirectMessage sends a card to a user's private channel.
	DirectMessage(ctx context.Context, userID string, card Card) (MessageRef, error)
}
