// Package channel describes how messages reach participants and how their
// input comes back as events.
package channel

import (
	"context"
	"errors"
	"strings"
)

// ErrUnreachable is returned when a participant cannot currently receive
// messages.
var ErrUnreachable = errors.New("participant unreachable")

// Button is one choice widget entry. Payload is what comes back in a
// selection event.
type Button struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// Message is rendered content plus an optional keyboard of button rows.
type Message struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

// Payloads flattens the keyboard into its payloads, row by row.
func (m Message) Payloads() []string {
	var out []string
	for _, row := range m.Buttons {
		for _, b := range row {
			out = append(out, b.Payload)
		}
	}
	return out
}

// EventKind is the shape of inbound input.
type EventKind string

const (
	KindText      EventKind = "text"
	KindSelection EventKind = "selection"
	KindMedia     EventKind = "media"
)

// Media is an attachment reference.
type Media struct {
	FileID   string `json:"file_id"`
	MIMEType string `json:"mime_type"`
}

// IsImage reports whether the attachment is a picture.
func (m *Media) IsImage() bool {
	return m != nil && m.FileID != "" && strings.HasPrefix(m.MIMEType, "image/")
}

// Event is one inbound input from a participant.
type Event struct {
	ParticipantID int64     `json:"participant_id"`
	Handle        string    `json:"handle,omitempty"`
	Kind          EventKind `json:"kind"`
	Text          string    `json:"text,omitempty"`
	Payload       string    `json:"payload,omitempty"`
	Media         *Media    `json:"media,omitempty"`
}

// Channel delivers messages to participants.
type Channel interface {
	Send(ctx context.Context, participantID int64, msg Message) error
	// EditLast replaces the most recent message sent to the participant.
	EditLast(ctx context.Context, participantID int64, msg Message) error
}
