package deals

import (
	"strconv"
	"strings"

	"github.com/sudo-init-do/circle/internal/channel"
)

// Namespace prefixes deal button payloads.
const Namespace = "deal"

// Verb names a deal affordance.
type Verb string

const (
	VerbPropose  Verb = "propose"
	VerbAccept   Verb = "accept"
	VerbDecline  Verb = "decline"
	VerbComplete Verb = "complete"
	VerbConfirm  Verb = "confirm"
)

// Action is a decoded deal button. Target is the receiver id for propose and
// the deal id otherwise.
type Action struct {
	Verb   Verb
	Target string
}

func (a Action) Payload() string {
	return Namespace + ":" + string(a.Verb) + ":" + a.Target
}

// ReceiverID parses Target as a participant id.
func (a Action) ReceiverID() (int64, bool) {
	id, err := strconv.ParseInt(a.Target, 10, 64)
	return id, err == nil
}

// ParseAction decodes a deal payload.
func ParseAction(payload string) (Action, bool) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] != Namespace || parts[2] == "" {
		return Action{}, false
	}
	switch v := Verb(parts[1]); v {
	case VerbPropose, VerbAccept, VerbDecline, VerbComplete, VerbConfirm:
		return Action{Verb: v, Target: parts[2]}, true
	}
	return Action{}, false
}

// ProposeButton is the "Propose deal" affordance next to a member.
func ProposeButton(receiverID int64) channel.Button {
	return channel.Button{Label: "Propose deal", Payload: Action{Verb: VerbPropose, Target: strconv.FormatInt(receiverID, 10)}.Payload()}
}

func button(label string, v Verb, dealID string) channel.Button {
	return channel.Button{Label: label, Payload: Action{Verb: v, Target: dealID}.Payload()}
}
