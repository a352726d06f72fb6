// Package wizard is a state-graph engine for multi-step conversations. A Flow
// is a set of named states; each state renders a prompt and turns one input
// into a Result that tells the engine where to go next.
package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/session"
)

// InputKind is the normalized shape of an inbound event.
type InputKind int

const (
	InputText InputKind = iota
	InputAction
	InputMedia
	// InputInvalid is a button press whose payload did not parse.
	InputInvalid
)

// Input is one event as seen by a state.
type Input struct {
	Kind   InputKind
	Text   string
	Action Action
	Media  *channel.Media
}

// InputFromEvent normalizes a channel event.
func InputFromEvent(evt channel.Event) Input {
	switch evt.Kind {
	case channel.KindSelection:
		a, ok := ParseAction(evt.Payload)
		if !ok {
			return Input{Kind: InputInvalid}
		}
		return Input{Kind: InputAction, Action: a}
	case channel.KindMedia:
		return Input{Kind: InputMedia, Media: evt.Media}
	default:
		return Input{Kind: InputText, Text: evt.Text}
	}
}

// is reports whether the input is the button press v.
func (in Input) is(v Verb) bool {
	return in.Kind == InputAction && in.Action.Verb == v
}

// Outcome says what the engine does after a state handled input.
type Outcome int

const (
	// Stay re-renders the current state, optionally with a hint.
	Stay Outcome = iota
	// Advance moves forward to Result.Next.
	Advance
)

// Result is a state's decision for one input.
type Result struct {
	Outcome Outcome
	Next    string
	Hint    string
}

func stay(hint string) Result     { return Result{Outcome: Stay, Hint: hint} }
func advance(next string) Result { return Result{Outcome: Advance, Next: next} }

// State is one node of a flow.
type State interface {
	ID() string
	Render(s *session.Session) channel.Message
	Handle(s *session.Session, in Input) Result
}

// CommitFunc persists a finished flow and returns the summary to show.
type CommitFunc func(ctx context.Context, s *session.Session) (channel.Message, error)

// Terminal is a state that commits on entry instead of waiting for input.
type Terminal struct {
	Name   string
	Commit CommitFunc
}

func (t *Terminal) ID() string { return t.Name }

func (t *Terminal) Render(*session.Session) channel.Message { return channel.Message{} }

func (t *Terminal) Handle(*session.Session, Input) Result { return stay("") }

// CommitError carries a message the participant should see when a commit
// fails for a reason they can act on.
type CommitError struct {
	Message string
	Err     error
}

func (e *CommitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CommitError) Unwrap() error { return e.Err }

// Flow is a named state graph.
type Flow struct {
	Name   string
	Start  string
	states map[string]State
}

// NewFlow indexes states by id. Ids end up in button payloads and must not
// contain a colon. Duplicate ids and an unknown start are errors.
func NewFlow(name, start string, states ...State) (*Flow, error) {
	f := &Flow{Name: name, Start: start, states: make(map[string]State, len(states))}
	for _, st := range states {
		if st.ID() == "" || strings.Contains(st.ID(), ":") {
			return nil, fmt.Errorf("flow %s: invalid state id %q", name, st.ID())
		}
		if _, dup := f.states[st.ID()]; dup {
			return nil, fmt.Errorf("flow %s: duplicate state %q", name, st.ID())
		}
		f.states[st.ID()] = st
	}
	if _, ok := f.states[start]; !ok {
		return nil, fmt.Errorf("flow %s: unknown start state %q", name, start)
	}
	return f, nil
}

// State returns the state with id.
func (f *Flow) State(id string) (State, bool) {
	st, ok := f.states[id]
	return st, ok
}

// IDs returns every state id.
func (f *Flow) IDs() []string {
	ids := make([]string, 0, len(f.states))
	for id := range f.states {
		ids = append(ids, id)
	}
	return ids
}

// target is where a state writes: the top-level answers or a draft record.
func target(s *session.Session, record string) *session.Answers {
	if record == "" {
		return s.Answers
	}
	return s.Draft(record)
}
