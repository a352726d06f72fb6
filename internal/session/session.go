// Package session keeps the per-participant conversation scratchpad: the
// current wizard position, the navigation history and the accumulated answers.
package session

import (
	"maps"
	"slices"
	"time"
)

// Session is the in-progress state of one participant's wizard.
type Session struct {
	ParticipantID int64               `json:"participant_id"`
	Flow          string              `json:"flow"`
	State         string              `json:"state"`
	History       []string            `json:"history,omitempty"`
	Answers       *Answers            `json:"answers"`
	Pointers      map[string]string   `json:"pointers,omitempty"`
	Drafts        map[string]*Answers `json:"drafts,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// New starts a session for flow positioned at state.
func New(participantID int64, flow, state string) *Session {
	return &Session{
		ParticipantID: participantID,
		Flow:          flow,
		State:         state,
		Answers:       NewAnswers(),
		UpdatedAt:     time.Now().UTC(),
	}
}

// Advance moves to next and records the current state for back navigation.
func (s *Session) Advance(next string) {
	s.History = append(s.History, s.State)
	s.State = next
}

// Back returns to the previous state. It never touches answers.
func (s *Session) Back() bool {
	if len(s.History) == 0 {
		return false
	}
	last := len(s.History) - 1
	s.State = s.History[last]
	s.History = s.History[:last]
	return true
}

// Pointer returns a transient pointer such as the category being drilled into.
func (s *Session) Pointer(key string) string {
	return s.Pointers[key]
}

// SetPointer stores a transient pointer.
func (s *Session) SetPointer(key, value string) {
	if s.Pointers == nil {
		s.Pointers = make(map[string]string)
	}
	s.Pointers[key] = value
}

// Draft returns the in-progress record for a repeatable section, creating it.
func (s *Session) Draft(name string) *Answers {
	if s.Drafts == nil {
		s.Drafts = make(map[string]*Answers)
	}
	d, ok := s.Drafts[name]
	if !ok {
		d = NewAnswers()
		s.Drafts[name] = d
	}
	return d
}

// TakeDraft removes and returns the draft; nil when there is none.
func (s *Session) TakeDraft(name string) *Answers {
	d := s.Drafts[name]
	delete(s.Drafts, name)
	return d
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = slices.Clone(s.History)
	out.Answers = s.Answers.Clone()
	out.Pointers = maps.Clone(s.Pointers)
	if s.Drafts != nil {
		out.Drafts = make(map[string]*Answers, len(s.Drafts))
		for k, v := range s.Drafts {
			out.Drafts[k] = v.Clone()
		}
	}
	return &out
}
