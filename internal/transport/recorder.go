package transport

import (
	"context"
	"fmt"
	"sync"
)

// Recorder is an in-memory Messenger for tests. It records every
// outbound call and can fail selected operations once.
type Recorder struct {
	mu     sync.Mutex
	nextID int

	Sent       []Recorded
	Edits      []Recorded
	Replies    []Recorded
	Ephemerals []EphemeralMsg
	Forms      []OpenedForm
	DMs        []Recorded

	// FailOn maps an operation (send, edit, reply, ephemeral, form,
	// dm) to an error returned by the next such call.
	FailOn map[string]error
}

// Recorded is one captured outbound card.
type Recorded struct {
	ChannelID string
	Ref       MessageRef
	Card      Card
}

type EphemeralMsg struct {
	Ref     MessageRef
	ActorID string
	Text    string
}

type OpenedForm struct {
	Event Event
	Form  Form
}

func NewRecorder() *Recorder {
	return &Recorder{FailOn: map[string]error{}}
}

func (r *Recorder) fail(op string) error {
	if err, ok := r.FailOn[op]; ok {
		delete(r.FailOn, op)
		return err
	}
	return nil
}

func (r *Recorder) ref(channelID string) MessageRef {
	r.nextID++
	return MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", r.nextID)}
}

func (r *Recorder) Send(ctx context.Context, channelID string, card Card) (MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("send"); err != nil {
		return MessageRef{}, err
	}
	ref := r.ref(channelID)
	r.Sent = append(r.Sent, Recorded{ChannelID: channelID, Ref: ref, Card: card})
	return ref, nil
}

func (r *Recorder) Edit(ctx context.Context, ref MessageRef, card Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("edit"); err != nil {
		return err
	}
	r.Edits = append(r.Edits, Recorded{ChannelID: ref.ChannelID, Ref: ref, Card: card})
	return nil
}

func (r *Recorder) Reply(ctx context.Context, ref MessageRef, card Card) (MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("reply"); err != nil {
		return MessageRef{}, err
	}
	out := r.ref(ref.ChannelID)
	r.Replies = append(r.Replies, Recorded{ChannelID: ref.ChannelID, Ref: out, Card: card})
	return out, nil
}

func (r *Recorder) Ephemeral(ctx context.Context, ref MessageRef, actorID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ephemeral"); err != nil {
		return err
	}
	r.Ephemerals = append(r.Ephemerals, EphemeralMsg{Ref: ref, ActorID: actorID, Text: text})
	return nil
}

func (r *Recorder) OpenForm(ctx context.Context, event Event, form Form) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("form"); err != nil {
		return err
	}
	r.Forms = append(r.Forms, OpenedForm{Event: event, Form: form})
	return nil
}

func (r *Recorder) DirectMessage(ctx context.Context, userID string, card Card) (MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("dm"); err != nil {
		return MessageRef{}, err
	}
	ref := r.ref("dm:" + userID)
	r.DMs = append(r.DMs, Recorded{ChannelID: "dm:" + userID, Ref: ref, Card: card})
	return ref, nil
}

// LastSent returns the most recent Send, failing the test-style caller
// contract with a zero value when nothing was sent.
func (r *Recorder) LastSent() Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return Recorded{}
	}
	return r.Sent[len(r.Sent)-1]
}

// LastEdit returns the most recent Edit.
func (r *Recorder) LastEdit() Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Edits) == 0 {
		return Recorded{}
	}
	return r.Edits[len(r.Edits)-1]
}
