// Package deals implements the two-party deal handshake. A deal moves from
// pending to accepted or declined, and from accepted to completed once the
// proposer asks for completion and the receiver confirms it. Completion
// credits the proposer with one point.
package deals

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/alerts"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/storage"
)

const tracerName = "github.com/sudo-init-do/circle/internal/deals"

// Store is the persistence the protocol needs.
type Store interface {
	GetParticipant(ctx context.Context, id int64) (storage.Participant, error)
	CreateDeal(ctx context.Context, proposerID, receiverID int64) (string, error)
	GetDeal(ctx context.Context, id string) (storage.Deal, error)
	ListDeals(ctx context.Context, filter storage.DealFilter) ([]storage.Deal, error)
	UpdateDealStatus(ctx context.Context, id string, from, to storage.DealStatus) error
	CompleteDeal(ctx context.Context, id string) (storage.Deal, error)
}

// Service runs deal transitions and tells the counterpart about them.
type Service struct {
	store  Store
	notify alerts.Notifier
	log    *zap.Logger
	tracer trace.Tracer
}

func NewService(store Store, notify alerts.Notifier, log *zap.Logger) *Service {
	return &Service{store: store, notify: notify, log: log, tracer: otel.Tracer(tracerName)}
}

func (s *Service) start(ctx context.Context, op string, actor int64, dealID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "deals."+op)
	span.SetAttributes(attribute.Int64("deal.actor_id", actor))
	if dealID != "" {
		span.SetAttributes(attribute.String("deal.id", dealID))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	var r *Rejection
	switch {
	case errors.As(err, &r):
		span.SetAttributes(attribute.String("deal.rejected", r.Reason.Error()))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) name(ctx context.Context, id int64) string {
	p, err := s.store.GetParticipant(ctx, id)
	if err != nil {
		return "A member"
	}
	return p.Name
}

func (s *Service) load(ctx context.Context, id string) (storage.Deal, error) {
	d, err := s.store.GetDeal(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Deal{}, reject(storage.ErrNotFound, "This deal does not exist.")
	}
	return d, err
}

// Propose opens a pending deal from proposer to receiver.
func (s *Service) Propose(ctx context.Context, proposer, receiver int64) (d storage.Deal, err error) {
	ctx, span := s.start(ctx, "Propose", proposer, "")
	defer func() { finish(span, err) }()

	if proposer == receiver {
		return storage.Deal{}, reject(ErrSelfDeal, "You cannot propose a deal to yourself.")
	}
	if _, err := s.store.GetParticipant(ctx, receiver); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Deal{}, reject(ErrUnknownParticipant, "That member is not registered.")
		}
		return storage.Deal{}, err
	}

	id, err := s.store.CreateDeal(ctx, proposer, receiver)
	if err != nil {
		return storage.Deal{}, fmt.Errorf("propose deal: %w", err)
	}
	span.SetAttributes(attribute.String("deal.id", id))
	if d, err = s.store.GetDeal(ctx, id); err != nil {
		return storage.Deal{}, fmt.Errorf("propose deal: %w", err)
	}
	s.log.Info("deal proposed", zap.String("deal_id", id), zap.Int64("proposer_id", proposer), zap.Int64("receiver_id", receiver))

	s.notify.Notify(ctx, receiver, channel.Message{
		Text:    fmt.Sprintf("%s proposes a deal with you.", s.name(ctx, proposer)),
		Buttons: [][]channel.Button{{button("Accept", VerbAccept, id), button("Decline", VerbDecline, id)}},
	})
	return d, nil
}

// Respond lets the receiver accept or decline a pending deal.
func (s *Service) Respond(ctx context.Context, actor int64, dealID string, accept bool) (d storage.Deal, err error) {
	ctx, span := s.start(ctx, "Respond", actor, dealID)
	defer func() { finish(span, err) }()

	if d, err = s.load(ctx, dealID); err != nil {
		return storage.Deal{}, err
	}
	if actor != d.ReceiverID {
		return storage.Deal{}, reject(ErrWrongActor, "Only the invited member can answer this deal.")
	}
	if d.Status != storage.DealPending {
		return storage.Deal{}, reject(ErrWrongState, "This deal was already answered.")
	}

	to := storage.DealDeclined
	if accept {
		to = storage.DealAccepted
	}
	if err := s.store.UpdateDealStatus(ctx, dealID, storage.DealPending, to); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.Deal{}, reject(ErrWrongState, "This deal was already answered.")
		}
		return storage.Deal{}, fmt.Errorf("respond to deal: %w", err)
	}
	d.Status = to
	s.log.Info("deal answered", zap.String("deal_id", dealID), zap.String("status", string(to)))

	who := s.name(ctx, d.ReceiverID)
	if accept {
		s.notify.Notify(ctx, d.ProposerID, channel.Message{
			Text:    fmt.Sprintf("%s accepted your deal. Mark it complete once it is done.", who),
			Buttons: [][]channel.Button{{button("Mark complete", VerbComplete, dealID)}},
		})
	} else {
		s.notify.Notify(ctx, d.ProposerID, channel.Message{Text: fmt.Sprintf("%s declined your deal.", who)})
	}
	return d, nil
}

// RequestCompletion is the proposer's half of completion. The status does
// not change until the receiver confirms.
func (s *Service) RequestCompletion(ctx context.Context, actor int64, dealID string) (d storage.Deal, err error) {
	ctx, span := s.start(ctx, "RequestCompletion", actor, dealID)
	defer func() { finish(span, err) }()

	if d, err = s.load(ctx, dealID); err != nil {
		return storage.Deal{}, err
	}
	if actor != d.ProposerID {
		return storage.Deal{}, reject(ErrWrongActor, "Only the member who proposed this deal can mark it complete.")
	}
	if d.Status != storage.DealAccepted {
		return storage.Deal{}, reject(ErrWrongState, "This deal cannot be completed now.")
	}

	s.notify.Notify(ctx, d.ReceiverID, channel.Message{
		Text:    fmt.Sprintf("%s marked your deal as complete. Please confirm.", s.name(ctx, d.ProposerID)),
		Buttons: [][]channel.Button{{button("Confirm", VerbConfirm, dealID)}},
	})
	return d, nil
}

// ConfirmCompletion is the receiver's sign-off. It completes the deal and
// credits the proposer in one transaction. Confirming a completed deal again
// returns it unchanged with credited == false.
func (s *Service) ConfirmCompletion(ctx context.Context, actor int64, dealID string) (d storage.Deal, credited bool, err error) {
	ctx, span := s.start(ctx, "ConfirmCompletion", actor, dealID)
	defer func() { finish(span, err) }()

	if d, err = s.load(ctx, dealID); err != nil {
		return storage.Deal{}, false, err
	}
	if actor != d.ReceiverID {
		return storage.Deal{}, false, reject(ErrWrongActor, "Only the invited member can confirm this deal.")
	}
	switch d.Status {
	case storage.DealCompleted:
		return d, false, nil
	case storage.DealAccepted:
	default:
		return storage.Deal{}, false, reject(ErrWrongState, "This deal cannot be completed now.")
	}

	completed, err := s.store.CompleteDeal(ctx, dealID)
	if errors.Is(err, storage.ErrConflict) {
		// Lost a race with a concurrent confirmation.
		if d, err = s.store.GetDeal(ctx, dealID); err == nil && d.Status == storage.DealCompleted {
			return d, false, nil
		}
		return storage.Deal{}, false, reject(ErrWrongState, "This deal cannot be completed now.")
	}
	if err != nil {
		return storage.Deal{}, false, fmt.Errorf("confirm deal: %w", err)
	}
	span.SetAttributes(attribute.Bool("deal.credited", true))
	s.log.Info("deal completed", zap.String("deal_id", dealID), zap.Int64("proposer_id", completed.ProposerID))

	s.notify.Notify(ctx, completed.ProposerID, channel.Message{
		Text: fmt.Sprintf("%s confirmed your deal. You earned 1 point.", s.name(ctx, completed.ReceiverID)),
	})
	return completed, true, nil
}

// Role is the participant's side of a deal.
type Role string

const (
	RoleProposed Role = "proposed"
	RoleReceived Role = "received"
)

// Summary is one row of a participant's deal list.
type Summary struct {
	Deal    storage.Deal
	Role    Role
	Partner string
}

// List returns the participant's deals with partner names.
func (s *Service) List(ctx context.Context, participantID int64) ([]Summary, error) {
	deals, err := s.store.ListDeals(ctx, storage.DealFilter{ParticipantID: participantID})
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(deals))
	for _, d := range deals {
		sum := Summary{Deal: d, Role: RoleProposed}
		partner := d.ReceiverID
		if d.ReceiverID == participantID {
			sum.Role = RoleReceived
			partner = d.ProposerID
		}
		sum.Partner = s.name(ctx, partner)
		out = append(out, sum)
	}
	return out, nil
}
