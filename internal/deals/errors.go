package deals

import "errors"

var (
	ErrSelfDeal           = errors.New("cannot deal with yourself")
	ErrWrongActor         = errors.New("actor is not the expected party")
	ErrWrongState         = errors.New("deal is not in the expected state")
	ErrUnknownParticipant = errors.New("participant is not registered")
)

// Rejection is a quiet refusal shown only to the acting participant. The
// deal is left unchanged.
type Rejection struct {
	Reason error
	Text   string
}

func reject(reason error, text string) *Rejection {
	return &Rejection{Reason: reason, Text: text}
}

func (r *Rejection) Error() string { return r.Reason.Error() }

func (r *Rejection) Unwrap() error { return r.Reason }
