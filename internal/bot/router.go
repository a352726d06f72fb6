// Package bot routes inbound channel events. Each event is handled under the
// participant's lock: cancel first, then button payloads by namespace, then
// slash commands, and finally the participant's active wizard.
package bot

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/catalog"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/deals"
	"github.com/sudo-init-do/circle/internal/lots"
	"github.com/sudo-init-do/circle/internal/session"
	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/wizard"
)

const tracerName = "github.com/sudo-init-do/circle/internal/bot"

const (
	textFailure  = "Sorry, something went wrong. Please try again."
	textExpired  = "This button is no longer active."
	textIdle     = "Send /help to see what I can do."
	textCanceled = "Cancelled. Send /help to see what I can do."
	textUnknown  = "Unknown command. Send /help to see what I can do."
	textMembers  = "Please register first. Open the invite link you received or send /start <token>."
)

// Store is the persistence the router reads directly.
type Store interface {
	GetParticipant(ctx context.Context, id int64) (storage.Participant, error)
	ListParticipants(ctx context.Context, filter storage.ParticipantFilter) ([]storage.Participant, error)
	TokenAvailable(ctx context.Context, token string) (bool, error)
	CreateToken(ctx context.Context) (string, error)
}

// Deps are the collaborators a Router needs.
type Deps struct {
	Store      Store
	Engine     *wizard.Engine
	Channel    channel.Channel
	Lots       *lots.Service
	Deals      *deals.Service
	Catalog    *catalog.Catalog
	Log        *zap.Logger
	ChannelURL string
}

type (
	actionFunc  func(ctx context.Context, evt channel.Event) error
	commandFunc func(ctx context.Context, evt channel.Event, arg string) error
)

// Router dispatches events for all participants.
type Router struct {
	Deps
	locker   *session.Locker
	tracer   trace.Tracer
	actions  map[string]actionFunc
	commands map[string]commandFunc
}

func New(d Deps) *Router {
	r := &Router{Deps: d, locker: session.NewLocker(), tracer: otel.Tracer(tracerName)}
	r.actions = map[string]actionFunc{
		wizard.Namespace: r.wizardAction,
		lots.Namespace:   r.lotAction,
		deals.Namespace:  r.dealAction,
	}
	r.commands = map[string]commandFunc{
		"start":   r.start,
		"help":    r.help,
		"lot":     r.newLot,
		"profile": r.profile,
		"deals":   r.listDeals,
		"lots":    r.listLots,
		"members": r.members,
		"browse":  r.browse,
		"token":   r.issueToken,
		"pending": r.pending,
	}
	return r
}

// Dispatch handles evt and logs failures. It matches the callback expected by
// channel.Hub.Serve.
func (r *Router) Dispatch(ctx context.Context, evt channel.Event) {
	if err := r.Handle(ctx, evt); err != nil {
		r.Log.Error("event failed", zap.Int64("participant_id", evt.ParticipantID), zap.Error(err))
	}
}

// Handle routes one event. On an internal error the participant gets a
// generic failure message and the error is returned.
func (r *Router) Handle(ctx context.Context, evt channel.Event) (err error) {
	unlock := r.locker.Lock(evt.ParticipantID)
	defer unlock()

	ctx, span := r.tracer.Start(ctx, "bot.Handle", trace.WithAttributes(
		attribute.Int64("participant_id", evt.ParticipantID),
		attribute.String("event.kind", string(evt.Kind)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err = r.route(ctx, evt); err != nil {
		r.reply(ctx, evt.ParticipantID, textFailure)
	}
	return err
}

func (r *Router) route(ctx context.Context, evt channel.Event) error {
	if isCancel(evt) {
		if err := r.Engine.Cancel(ctx, evt.ParticipantID); err != nil {
			return err
		}
		r.reply(ctx, evt.ParticipantID, textCanceled)
		return nil
	}

	if evt.Kind == channel.KindSelection {
		ns, _, _ := strings.Cut(evt.Payload, ":")
		if act, ok := r.actions[ns]; ok {
			return act(ctx, evt)
		}
		r.reply(ctx, evt.ParticipantID, textExpired)
		return nil
	}

	if name, arg, ok := parseCommand(evt); ok {
		if cmd, ok := r.commands[name]; ok {
			return cmd(ctx, evt, arg)
		}
		r.reply(ctx, evt.ParticipantID, textUnknown)
		return nil
	}

	handled, err := r.Engine.Handle(ctx, evt)
	if err != nil {
		return err
	}
	if !handled {
		r.reply(ctx, evt.ParticipantID, textIdle)
	}
	return nil
}

func isCancel(evt channel.Event) bool {
	switch evt.Kind {
	case channel.KindSelection:
		return evt.Payload == wizard.PayloadCancel
	case channel.KindText:
		return strings.TrimSpace(evt.Text) == "/cancel"
	}
	return false
}

func parseCommand(evt channel.Event) (name, arg string, ok bool) {
	if evt.Kind != channel.KindText {
		return "", "", false
	}
	text := strings.TrimSpace(evt.Text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(text[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

func (r *Router) reply(ctx context.Context, participantID int64, text string) {
	r.send(ctx, participantID, channel.Message{Text: text})
}

func (r *Router) send(ctx context.Context, participantID int64, msg channel.Message) {
	if err := r.Channel.Send(ctx, participantID, msg); err != nil {
		r.Log.Warn("reply not delivered", zap.Int64("participant_id", participantID), zap.Error(err))
	}
}

// member loads the sender's profile. ok is false for unregistered senders,
// who are told to register.
func (r *Router) member(ctx context.Context, participantID int64) (p storage.Participant, ok bool, err error) {
	p, err = r.Store.GetParticipant(ctx, participantID)
	if isNotFound(err) {
		r.reply(ctx, participantID, textMembers)
		return storage.Participant{}, false, nil
	}
	if err != nil {
		return storage.Participant{}, false, err
	}
	return p, true, nil
}

func isNotFound(err error) bool { return errors.Is(err, storage.ErrNotFound) }

func (r *Router) admin(ctx context.Context, participantID int64) bool {
	if r.Lots.IsAdmin(participantID) {
		return true
	}
	r.reply(ctx, participantID, "This command is for administrators.")
	return false
}
