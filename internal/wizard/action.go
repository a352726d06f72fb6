package wizard

import (
	"strconv"
	"strings"

	"github.com/sudo-init-do/circle/internal/session"
)

// Verb is what a wizard button asks for.
type Verb string

const (
	VerbPick   Verb = "pick"
	VerbToggle Verb = "toggle"
	VerbDone   Verb = "done"
	VerbBack   Verb = "back"
	VerbFill   Verb = "fill"
	VerbSkip   Verb = "skip"
	VerbYes    Verb = "yes"
	VerbNo     Verb = "no"
)

// Namespace prefixes every wizard button payload.
const Namespace = "w"

// indexed verbs carry an option index.
var indexed = map[Verb]bool{VerbPick: true, VerbToggle: true}

var known = map[Verb]bool{
	VerbPick: true, VerbToggle: true, VerbDone: true, VerbBack: true,
	VerbFill: true, VerbSkip: true, VerbYes: true, VerbNo: true,
}

// Action is a parsed wizard button press. Options are addressed by index so
// payloads stay short regardless of label length. State is the tag of the
// prompt that rendered the button; a press from any other prompt is stale.
type Action struct {
	State string
	Verb  Verb
	Index int
}

// Payload encodes the action for a button as w:<state>:<verb>[:<index>].
func (a Action) Payload() string {
	p := Namespace + ":" + a.State + ":" + string(a.Verb)
	if indexed[a.Verb] {
		p += ":" + strconv.Itoa(a.Index)
	}
	return p
}

// ParseAction decodes a button payload produced by Payload.
func ParseAction(payload string) (Action, bool) {
	parts := strings.Split(payload, ":")
	if len(parts) < 3 || parts[0] != Namespace || parts[1] == "" {
		return Action{}, false
	}
	a := Action{State: parts[1], Verb: Verb(parts[2])}
	if !known[a.Verb] {
		return Action{}, false
	}
	if !indexed[a.Verb] {
		if len(parts) != 3 {
			return Action{}, false
		}
		return a, true
	}
	if len(parts) != 4 {
		return Action{}, false
	}
	i, err := strconv.Atoi(parts[3])
	if err != nil || i < 0 {
		return Action{}, false
	}
	a.Index = i
	return a, true
}

// tagger is implemented by states whose prompt depends on more than the state
// id, so buttons from an earlier rendering of the same state go stale too.
type tagger interface {
	Tag(s *session.Session) string
}

// tagOf is the tag buttons rendered by st for s carry.
func tagOf(st State, s *session.Session) string {
	if t, ok := st.(tagger); ok {
		return t.Tag(s)
	}
	return st.ID()
}

func pick(tag string, i int) string   { return Action{State: tag, Verb: VerbPick, Index: i}.Payload() }
func toggle(tag string, i int) string { return Action{State: tag, Verb: VerbToggle, Index: i}.Payload() }
func verb(tag string, v Verb) string  { return Action{State: tag, Verb: v}.Payload() }
