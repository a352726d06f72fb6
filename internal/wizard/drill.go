package wizard

import (
	"fmt"

	"github.com/sudo-init-do/circle/internal/catalog"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/session"
)

// drillPointer is the session pointer holding the category being drilled into.
func drillPointer(field string) string { return "drill:" + field }

// CategoryState is the first half of a category drill: pick a category of
// Tree, then toggle its items in ItemState. Selections from every category
// accumulate in one set under Field.
type CategoryState struct {
	Name   string
	Prompt string
	Field  string
	Record string
	Tree   catalog.Tree
	Items  string
	Next   string
}

func (c *CategoryState) ID() string { return c.Name }

func (c *CategoryState) Render(s *session.Session) channel.Message {
	sel, _ := target(s, c.Record).Get(c.Field)
	rows := make([][]channel.Button, 0, len(c.Tree.Categories)+1)
	for i, cat := range c.Tree.Categories {
		label := cat.Name
		if n := countIn(sel, cat.Items); n > 0 {
			label = fmt.Sprintf("%s (%d)", cat.Name, n)
		}
		rows = append(rows, []channel.Button{{Label: label, Payload: pick(c.Name, i)}})
	}
	if len(sel.Set) > 0 {
		rows = append(rows, []channel.Button{{Label: "Done", Payload: verb(c.Name, VerbDone)}})
	}
	return channel.Message{Text: withSelection(c.Prompt, sel.Set), Buttons: rows}
}

func (c *CategoryState) Handle(s *session.Session, in Input) Result {
	switch {
	case in.is(VerbPick) && in.Action.Index < len(c.Tree.Categories):
		s.SetPointer(drillPointer(c.Field), c.Tree.Categories[in.Action.Index].Key)
		return advance(c.Items)
	case in.is(VerbDone):
		if len(target(s, c.Record).Selection(c.Field)) == 0 {
			return stay(hintChooseOne)
		}
		return advance(c.Next)
	}
	return stay(hintUseButtons)
}

func countIn(sel session.Value, items []string) int {
	n := 0
	for _, it := range items {
		if sel.Has(it) {
			n++
		}
	}
	return n
}

// ItemState toggles the leaf items of the category chosen in CategoryState.
// Back returns to the category picker with the set intact.
type ItemState struct {
	Name   string
	Field  string
	Record string
	Tree   catalog.Tree
	Next   string
}

func (it *ItemState) ID() string { return it.Name }

func (it *ItemState) category(s *session.Session) catalog.Category {
	if cat, ok := it.Tree.Category(s.Pointer(drillPointer(it.Field))); ok {
		return cat
	}
	return it.Tree.Categories[0]
}

// Tag binds item buttons to the category they were rendered for.
func (it *ItemState) Tag(s *session.Session) string {
	return it.Name + "." + it.category(s).Key
}

func (it *ItemState) Render(s *session.Session) channel.Message {
	cat := it.category(s)
	tag := it.Tag(s)
	sel, _ := target(s, it.Record).Get(it.Field)
	rows := make([][]channel.Button, 0, len(cat.Items)+1)
	for i, item := range cat.Items {
		label := item
		if sel.Has(item) {
			label = checkMark + item
		}
		rows = append(rows, []channel.Button{{Label: label, Payload: toggle(tag, i)}})
	}
	rows = append(rows, []channel.Button{{Label: "Done", Payload: verb(tag, VerbDone)}})
	return channel.Message{Text: withSelection(cat.Name, sel.Set), Buttons: rows}
}

func (it *ItemState) Handle(s *session.Session, in Input) Result {
	cat := it.category(s)
	sel := target(s, it.Record)
	switch {
	case in.is(VerbToggle) && in.Action.Index < len(cat.Items):
		sel.Toggle(it.Field, cat.Items[in.Action.Index])
		return stay("")
	case in.is(VerbDone):
		if len(sel.Selection(it.Field)) == 0 {
			return stay(hintChooseOne)
		}
		return advance(it.Next)
	}
	return stay(hintUseButtons)
}
