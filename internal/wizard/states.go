package wizard

import (
	"strings"

	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/session"
)

const (
	hintUseButtons = "Please use the buttons below."
	hintTypeAnswer = "Please type your answer."
	hintChooseOne  = "Choose at least one option, then press Done."
	checkMark      = "✅ "
)

// TextState accepts one line of free text.
type TextState struct {
	Name   string
	Prompt string
	Field  string
	Record string
	Parse  ParseFunc
	Next   string
}

func (t *TextState) ID() string { return t.Name }

func (t *TextState) Render(s *session.Session) channel.Message {
	text := t.Prompt
	if cur := target(s, t.Record).GetText(t.Field); cur != "" {
		text += "\n\nCurrent: " + cur
	}
	return channel.Message{Text: text}
}

func (t *TextState) Handle(s *session.Session, in Input) Result {
	if in.Kind != InputText {
		return stay(hintTypeAnswer)
	}
	parse := t.Parse
	if parse == nil {
		parse = Line(1, 500)
	}
	v, err := parse(in.Text)
	if err != nil {
		return stay(err.Error())
	}
	target(s, t.Record).Put(t.Field, v)
	return advance(t.Next)
}

// ChoiceState records one option and moves on immediately.
type ChoiceState struct {
	Name    string
	Prompt  string
	Field   string
	Record  string
	Options []string
	// Labels, when set, are shown instead of Options.
	Labels []string
	Next   string
}

func (c *ChoiceState) ID() string { return c.Name }

func (c *ChoiceState) label(i int) string {
	if i < len(c.Labels) {
		return c.Labels[i]
	}
	return c.Options[i]
}

func (c *ChoiceState) Render(s *session.Session) channel.Message {
	cur := target(s, c.Record).GetText(c.Field)
	rows := make([][]channel.Button, 0, len(c.Options))
	for i, opt := range c.Options {
		label := c.label(i)
		if opt == cur {
			label = checkMark + label
		}
		rows = append(rows, []channel.Button{{Label: label, Payload: pick(c.Name, i)}})
	}
	return channel.Message{Text: c.Prompt, Buttons: rows}
}

func (c *ChoiceState) Handle(s *session.Session, in Input) Result {
	if !in.is(VerbPick) || in.Action.Index >= len(c.Options) {
		return stay(hintUseButtons)
	}
	target(s, c.Record).Put(c.Field, session.Text(c.Options[in.Action.Index]))
	return advance(c.Next)
}

// MultiState toggles options in a selection set until Done. Done is refused
// while the set is empty.
type MultiState struct {
	Name    string
	Prompt  string
	Field   string
	Record  string
	Options []string
	Next    string
}

func (m *MultiState) ID() string { return m.Name }

func (m *MultiState) Render(s *session.Session) channel.Message {
	sel := target(s, m.Record)
	rows := make([][]channel.Button, 0, len(m.Options)+1)
	for i, opt := range m.Options {
		label := opt
		if v, ok := sel.Get(m.Field); ok && v.Has(opt) {
			label = checkMark + opt
		}
		rows = append(rows, []channel.Button{{Label: label, Payload: toggle(m.Name, i)}})
	}
	rows = append(rows, []channel.Button{{Label: "Done", Payload: verb(m.Name, VerbDone)}})
	return channel.Message{Text: withSelection(m.Prompt, sel.Selection(m.Field)), Buttons: rows}
}

func (m *MultiState) Handle(s *session.Session, in Input) Result {
	sel := target(s, m.Record)
	switch {
	case in.is(VerbToggle) && in.Action.Index < len(m.Options):
		sel.Toggle(m.Field, m.Options[in.Action.Index])
		return stay("")
	case in.is(VerbDone):
		if len(sel.Selection(m.Field)) == 0 {
			return stay(hintChooseOne)
		}
		return advance(m.Next)
	}
	return stay(hintUseButtons)
}

func withSelection(prompt string, selected []string) string {
	if len(selected) == 0 {
		return prompt
	}
	return prompt + "\n\nSelected: " + strings.Join(selected, ", ")
}
