package bot

import (
	"context"
	"errors"

	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/deals"
	"github.com/sudo-init-do/circle/internal/lots"
	"github.com/sudo-init-do/circle/internal/storage"
)

func (r *Router) wizardAction(ctx context.Context, evt channel.Event) error {
	handled, err := r.Engine.Handle(ctx, evt)
	if err != nil {
		return err
	}
	if !handled {
		r.reply(ctx, evt.ParticipantID, textExpired)
	}
	return nil
}

func (r *Router) lotAction(ctx context.Context, evt channel.Event) error {
	a, ok := lots.ParseAction(evt.Payload)
	if !ok {
		r.reply(ctx, evt.ParticipantID, textExpired)
		return nil
	}
	l, err := r.Lots.Moderate(ctx, evt.ParticipantID, a.ListingID, a.Decision)
	switch {
	case errors.Is(err, lots.ErrNotAdmin):
		r.reply(ctx, evt.ParticipantID, "Only administrators can moderate lots.")
	case errors.Is(err, lots.ErrNotPending):
		r.reply(ctx, evt.ParticipantID, "This lot was already moderated.")
	case errors.Is(err, storage.ErrNotFound):
		r.reply(ctx, evt.ParticipantID, "This lot no longer exists.")
	case err != nil:
		return err
	default:
		r.reply(ctx, evt.ParticipantID, "Lot \""+l.Title+"\" "+string(l.Status)+".")
	}
	return nil
}

func (r *Router) dealAction(ctx context.Context, evt channel.Event) error {
	a, ok := deals.ParseAction(evt.Payload)
	if !ok {
		r.reply(ctx, evt.ParticipantID, textExpired)
		return nil
	}
	if _, ok, err := r.member(ctx, evt.ParticipantID); !ok {
		return err
	}

	pid := evt.ParticipantID
	var (
		text string
		err  error
	)
	switch a.Verb {
	case deals.VerbPropose:
		receiver, valid := a.ReceiverID()
		if !valid {
			r.reply(ctx, pid, textExpired)
			return nil
		}
		_, err = r.Deals.Propose(ctx, pid, receiver)
		text = "Your deal proposal was sent."
	case deals.VerbAccept:
		_, err = r.Deals.Respond(ctx, pid, a.Target, true)
		text = "Deal accepted."
	case deals.VerbDecline:
		_, err = r.Deals.Respond(ctx, pid, a.Target, false)
		text = "Deal declined."
	case deals.VerbComplete:
		_, err = r.Deals.RequestCompletion(ctx, pid, a.Target)
		text = "Asked the other member to confirm completion."
	case deals.VerbConfirm:
		var credited bool
		_, credited, err = r.Deals.ConfirmCompletion(ctx, pid, a.Target)
		text = "Deal completed. Thank you!"
		if !credited {
			text = "This deal is already completed."
		}
	}

	var rej *deals.Rejection
	if errors.As(err, &rej) {
		r.reply(ctx, pid, rej.Text)
		return nil
	}
	if err != nil {
		return err
	}
	r.reply(ctx, pid, text)
	return nil
}
