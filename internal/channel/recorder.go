package channel

import (
	"context"
	"sync"
)

// Delivery is one message recorded by a Recorder.
type Delivery struct {
	ParticipantID int64
	Edit          bool
	Message       Message
}

// Recorder is an in-memory Channel that keeps everything it is asked to send.
type Recorder struct {
	mu          sync.Mutex
	deliveries  []Delivery
	unreachable map[int64]bool
}

var _ Channel = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{unreachable: make(map[int64]bool)}
}

// Block makes participantID unreachable.
func (r *Recorder) Block(participantID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable[participantID] = true
}

func (r *Recorder) record(participantID int64, edit bool, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unreachable[participantID] {
		return ErrUnreachable
	}
	r.deliveries = append(r.deliveries, Delivery{ParticipantID: participantID, Edit: edit, Message: msg})
	return nil
}

func (r *Recorder) Send(_ context.Context, participantID int64, msg Message) error {
	return r.record(participantID, false, msg)
}

func (r *Recorder) EditLast(_ context.Context, participantID int64, msg Message) error {
	return r.record(participantID, true, msg)
}

// Messages returns what participantID received, oldest first.
func (r *Recorder) Messages(participantID int64) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, d := range r.deliveries {
		if d.ParticipantID == participantID {
			out = append(out, d.Message)
		}
	}
	return out
}

// Last returns the most recent message for participantID.
func (r *Recorder) Last(participantID int64) (Message, bool) {
	msgs := r.Messages(participantID)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Deliveries returns a copy of everything recorded.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Reset forgets recorded deliveries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
