package wizard

import (
	"strconv"

	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/session"
)

// GateState heads an optional section: Fill enters it, Skip jumps past it.
type GateState struct {
	Name   string
	Prompt string
	Fill   string
	Skip   string
}

func (g *GateState) ID() string { return g.Name }

func (g *GateState) Render(*session.Session) channel.Message {
	return channel.Message{Text: g.Prompt, Buttons: [][]channel.Button{{
		{Label: "Fill in", Payload: verb(g.Name, VerbFill)},
		{Label: "Skip", Payload: verb(g.Name, VerbSkip)},
	}}}
}

func (g *GateState) Handle(_ *session.Session, in Input) Result {
	switch {
	case in.is(VerbFill):
		return advance(g.Fill)
	case in.is(VerbSkip):
		return advance(g.Skip)
	}
	return stay(hintUseButtons)
}

// LoopState closes one repeatable record. Both answers move the finished
// draft Record onto the List field; yes starts a fresh record at Again, no
// continues to Next.
type LoopState struct {
	Name   string
	Prompt string
	Record string
	List   string
	Again  string
	Next   string
}

func (l *LoopState) ID() string { return l.Name }

func (l *LoopState) Render(s *session.Session) channel.Message {
	text := l.Prompt
	if v, ok := s.Answers.Get(l.List); ok && len(v.List) > 0 {
		text = l.Prompt + "\n\nSaved so far: " + strconv.Itoa(len(v.List))
	}
	return channel.Message{Text: text, Buttons: [][]channel.Button{{
		{Label: "Add another", Payload: verb(l.Name, VerbYes)},
		{Label: "No, continue", Payload: verb(l.Name, VerbNo)},
	}}}
}

func (l *LoopState) Handle(s *session.Session, in Input) Result {
	switch {
	case in.is(VerbYes):
		l.flush(s)
		return advance(l.Again)
	case in.is(VerbNo):
		l.flush(s)
		return advance(l.Next)
	}
	return stay(hintUseButtons)
}

func (l *LoopState) flush(s *session.Session) {
	if d := s.TakeDraft(l.Record); d.Len() > 0 {
		s.Answers.Append(l.List, d)
	}
}

// MediaState waits for one image. Anything else re-prompts without a hint.
type MediaState struct {
	Name   string
	Prompt string
	Field  string
	Record string
	Next   string
}

func (m *MediaState) ID() string { return m.Name }

func (m *MediaState) Render(*session.Session) channel.Message {
	return channel.Message{Text: m.Prompt}
}

func (m *MediaState) Handle(s *session.Session, in Input) Result {
	if in.Kind != InputMedia || !in.Media.IsImage() {
		return stay("")
	}
	photo := session.NewAnswers()
	photo.Put("file_id", session.Text(in.Media.FileID))
	photo.Put("mime_type", session.Text(in.Media.MIMEType))
	target(s, m.Record).Put(m.Field, session.RecordOf(photo))
	return advance(m.Next)
}
