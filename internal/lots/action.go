package lots

import (
	"strings"

	"github.com/sudo-init-do/circle/internal/storage"
)

// Namespace prefixes moderation button payloads.
const Namespace = "lot"

var verbs = map[string]storage.ListingStatus{
	"approve": storage.ListingApproved,
	"reject":  storage.ListingRejected,
}

// Action is an administrator's moderation decision from a button.
type Action struct {
	Decision  storage.ListingStatus
	ListingID string
}

// Payload encodes the action for a button.
func (a Action) Payload() string {
	for v, d := range verbs {
		if d == a.Decision {
			return Namespace + ":" + v + ":" + a.ListingID
		}
	}
	return ""
}

// ParseAction decodes a moderation payload.
func ParseAction(payload string) (Action, bool) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] != Namespace || parts[2] == "" {
		return Action{}, false
	}
	d, ok := verbs[parts[1]]
	if !ok {
		return Action{}, false
	}
	return Action{Decision: d, ListingID: parts[2]}, true
}
