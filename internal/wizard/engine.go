package wizard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/session"
)

// PayloadCancel is the payload of the cancel button shown on every prompt.
const PayloadCancel = "cancel"

const (
	failureText = "Sorry, something went wrong while saving. Please try again."
	textStale   = "This button is no longer active."
)

// Engine runs flows against stored sessions. Callers serialize events per
// participant; the engine itself does a plain read-modify-write.
type Engine struct {
	store session.Store
	ch    channel.Channel
	log   *zap.Logger
	flows map[string]*Flow
}

// NewEngine returns an engine serving flows.
func NewEngine(store session.Store, ch channel.Channel, log *zap.Logger, flows ...*Flow) *Engine {
	e := &Engine{store: store, ch: ch, log: log, flows: make(map[string]*Flow, len(flows))}
	for _, f := range flows {
		e.flows[f.Name] = f
	}
	return e
}

// Begin starts flow for participantID, replacing any session it had. seed may
// preload pointers or answers.
func (e *Engine) Begin(ctx context.Context, participantID int64, flow string, seed func(*session.Session)) error {
	f, ok := e.flows[flow]
	if !ok {
		return fmt.Errorf("unknown flow %q", flow)
	}
	s := session.New(participantID, flow, f.Start)
	if seed != nil {
		seed(s)
	}
	return e.save(ctx, s, f, "", false)
}

// Active returns the flow the participant is in, or "" when idle.
func (e *Engine) Active(ctx context.Context, participantID int64) (string, error) {
	s, err := e.store.Get(ctx, participantID)
	if errors.Is(err, session.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	return s.Flow, nil
}

// Cancel drops the participant's session wherever it is.
func (e *Engine) Cancel(ctx context.Context, participantID int64) error {
	if err := e.store.Delete(ctx, participantID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Handle feeds one event to the participant's session. It reports false when
// the participant has no session.
func (e *Engine) Handle(ctx context.Context, evt channel.Event) (bool, error) {
	s, err := e.store.Get(ctx, evt.ParticipantID)
	if errors.Is(err, session.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	f, ok := e.flows[s.Flow]
	if !ok {
		e.log.Warn("dropping session for unknown flow", zap.Int64("participant_id", s.ParticipantID), zap.String("flow", s.Flow))
		return false, e.Cancel(ctx, s.ParticipantID)
	}

	st, ok := f.State(s.State)
	if !ok {
		return true, fmt.Errorf("flow %s: unknown state %q", f.Name, s.State)
	}
	in := InputFromEvent(evt)
	if in.Kind == InputAction && in.Action.State != tagOf(st, s) {
		e.show(ctx, s, f, textStale, false)
		return true, nil
	}
	work := s.Clone()
	if in.is(VerbBack) {
		work.Back()
		return true, e.save(ctx, work, f, "", false)
	}

	res := st.Handle(work, in)
	switch res.Outcome {
	case Advance:
		next, ok := f.State(res.Next)
		if !ok {
			return true, fmt.Errorf("flow %s: state %s leads to unknown %q", f.Name, st.ID(), res.Next)
		}
		if term, ok := next.(*Terminal); ok {
			return true, e.commit(ctx, s, work, f, term)
		}
		work.Advance(res.Next)
		return true, e.save(ctx, work, f, "", false)
	default:
		edit := res.Hint == "" && in.Kind == InputAction
		return true, e.save(ctx, work, f, res.Hint, edit)
	}
}

func (e *Engine) save(ctx context.Context, s *session.Session, f *Flow, hint string, edit bool) error {
	if err := e.store.Put(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	e.show(ctx, s, f, hint, edit)
	return nil
}

// commit runs the terminal state. On failure the stored session is left as it
// was before the input so the participant can repeat the last step.
func (e *Engine) commit(ctx context.Context, before, work *session.Session, f *Flow, term *Terminal) error {
	summary, err := term.Commit(ctx, work)
	if err != nil {
		e.log.Error("flow commit failed",
			zap.String("flow", f.Name),
			zap.Int64("participant_id", work.ParticipantID),
			zap.Error(err))
		text := failureText
		var ce *CommitError
		if errors.As(err, &ce) {
			text = ce.Message
		}
		e.show(ctx, before, f, text, false)
		return nil
	}
	if err := e.Cancel(ctx, work.ParticipantID); err != nil {
		e.log.Warn("session not cleared after commit", zap.Int64("participant_id", work.ParticipantID), zap.Error(err))
	}
	e.deliver(ctx, work.ParticipantID, summary, false)
	return nil
}

// Prompt renders the current state of s, as shown after every step.
func (e *Engine) Prompt(s *session.Session) (channel.Message, bool) {
	f, ok := e.flows[s.Flow]
	if !ok {
		return channel.Message{}, false
	}
	st, ok := f.State(s.State)
	if !ok {
		return channel.Message{}, false
	}
	msg := st.Render(s)
	nav := []channel.Button{{Label: "Cancel", Payload: PayloadCancel}}
	if len(s.History) > 0 {
		nav = append([]channel.Button{{Label: "Back", Payload: verb(tagOf(st, s), VerbBack)}}, nav...)
	}
	msg.Buttons = append(msg.Buttons, nav)
	return msg, true
}

func (e *Engine) show(ctx context.Context, s *session.Session, f *Flow, hint string, edit bool) {
	msg, ok := e.Prompt(s)
	if !ok {
		e.log.Error("cannot render state", zap.String("flow", f.Name), zap.String("state", s.State))
		return
	}
	if hint != "" {
		msg.Text = hint + "\n\n" + msg.Text
	}
	e.deliver(ctx, s.ParticipantID, msg, edit)
}

func (e *Engine) deliver(ctx context.Context, participantID int64, msg channel.Message, edit bool) {
	var err error
	if edit {
		err = e.ch.EditLast(ctx, participantID, msg)
	} else {
		err = e.ch.Send(ctx, participantID, msg)
	}
	if err != nil {
		e.log.Warn("prompt not delivered", zap.Int64("participant_id", participantID), zap.Error(err))
	}
}
