package bot

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/deals"
	"github.com/sudo-init-do/circle/internal/lots"
	"github.com/sudo-init-do/circle/internal/questionnaire"
	"github.com/sudo-init-do/circle/internal/storage"
)

var titleCase = cases.Title(language.English)

const helpText = `/profile - your profile and points
/lot - offer or request something
/lots - your lots and their status
/deals - your deals
/members <city> - members in a city
/browse <city> [category] - approved lots in a city
/cancel - stop the current step`

const adminHelp = `
/token - issue an invite token
/pending - lots waiting for moderation`

func (r *Router) start(ctx context.Context, evt channel.Event, token string) error {
	pid := evt.ParticipantID
	p, err := r.Store.GetParticipant(ctx, pid)
	switch {
	case err == nil:
		r.reply(ctx, pid, fmt.Sprintf("Welcome back, %s!\n\n%s", p.Name, r.helpFor(pid)))
		return nil
	case !isNotFound(err):
		return err
	}

	if token != "" {
		ok, err := r.Store.TokenAvailable(ctx, token)
		if err != nil {
			return err
		}
		if !ok {
			r.reply(ctx, pid, "This invite is not valid or was already used.")
			return nil
		}
	} else if !r.Lots.IsAdmin(pid) {
		r.reply(ctx, pid, "Circle is invite only. Ask a member for an invite link.")
		return nil
	}
	return r.Engine.Begin(ctx, pid, questionnaire.FlowName, questionnaire.Seed(token, evt.Handle))
}

func (r *Router) helpFor(participantID int64) string {
	text := helpText
	if r.Lots.IsAdmin(participantID) {
		text += adminHelp
	}
	if r.ChannelURL != "" {
		text += "\n\nCommunity channel: " + r.ChannelURL
	}
	return text
}

func (r *Router) help(ctx context.Context, evt channel.Event, _ string) error {
	r.reply(ctx, evt.ParticipantID, r.helpFor(evt.ParticipantID))
	return nil
}

func (r *Router) newLot(ctx context.Context, evt channel.Event, _ string) error {
	if _, ok, err := r.member(ctx, evt.ParticipantID); !ok {
		return err
	}
	return r.Engine.Begin(ctx, evt.ParticipantID, lots.FlowName, nil)
}

func (r *Router) profile(ctx context.Context, evt channel.Event, _ string) error {
	p, ok, err := r.member(ctx, evt.ParticipantID)
	if !ok {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Name)
	if p.Handle != "" {
		fmt.Fprintf(&b, "@%s\n", p.Handle)
	}
	fmt.Fprintf(&b, "City: %s\n", p.Location)
	if p.Bio != "" {
		fmt.Fprintf(&b, "About: %s\n", p.Bio)
	}
	if p.Social != "" {
		fmt.Fprintf(&b, "Social: @%s\n", p.Social)
	}
	fmt.Fprintf(&b, "Points: %d", p.Points)
	r.reply(ctx, evt.ParticipantID, b.String())
	return nil
}

func (r *Router) listDeals(ctx context.Context, evt channel.Event, _ string) error {
	if _, ok, err := r.member(ctx, evt.ParticipantID); !ok {
		return err
	}
	list, err := r.Deals.List(ctx, evt.ParticipantID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		r.reply(ctx, evt.ParticipantID, "You have no deals yet. Find members with /members <city>.")
		return nil
	}
	var b strings.Builder
	b.WriteString("Your deals:\n")
	for _, s := range list {
		role := "You proposed to"
		if s.Role == deals.RoleReceived {
			role = "Proposed by"
		}
		fmt.Fprintf(&b, "\n%s %s: %s (%s)", role, s.Partner,
			titleCase.String(string(s.Deal.Status)), s.Deal.CreatedAt.Format("2006-01-02"))
	}
	r.reply(ctx, evt.ParticipantID, b.String())
	return nil
}

func (r *Router) listLots(ctx context.Context, evt channel.Event, _ string) error {
	if _, ok, err := r.member(ctx, evt.ParticipantID); !ok {
		return err
	}
	list, err := r.Lots.Owned(ctx, evt.ParticipantID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		r.reply(ctx, evt.ParticipantID, "You have no lots yet. Create one with /lot.")
		return nil
	}
	parts := make([]string, len(list))
	for i, l := range list {
		parts[i] = lots.Describe(l)
	}
	r.reply(ctx, evt.ParticipantID, strings.Join(parts, "\n\n---\n\n"))
	return nil
}

func (r *Router) members(ctx context.Context, evt channel.Event, city string) error {
	if _, ok, err := r.member(ctx, evt.ParticipantID); !ok {
		return err
	}
	if city == "" {
		r.reply(ctx, evt.ParticipantID, "Usage: /members <city>")
		return nil
	}
	for _, name := range r.Catalog.CityNames() {
		if strings.EqualFold(name, city) {
			city = name
			break
		}
	}
	list, err := r.Store.ListParticipants(ctx, storage.ParticipantFilter{Location: city, ExcludeID: evt.ParticipantID})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		r.reply(ctx, evt.ParticipantID, fmt.Sprintf("No members in %s yet.", city))
		return nil
	}
	for _, p := range list {
		text := p.Name
		if p.Bio != "" {
			text += "\n" + p.Bio
		}
		r.send(ctx, evt.ParticipantID, channel.Message{
			Text:    text,
			Buttons: [][]channel.Button{{deals.ProposeButton(p.ID)}},
		})
	}
	return nil
}

// resolveCity matches the leading words of arg against the catalog cities,
// ignoring case, and returns the city and whatever follows it.
func (r *Router) resolveCity(arg string) (city, rest string, ok bool) {
	for _, name := range r.Catalog.CityNames() {
		if len(arg) < len(name) || !strings.EqualFold(arg[:len(name)], name) {
			continue
		}
		tail := arg[len(name):]
		if tail != "" && tail[0] != ' ' {
			continue
		}
		if !ok || len(name) > len(city) {
			city, rest, ok = name, strings.TrimSpace(tail), true
		}
	}
	return city, rest, ok
}

func (r *Router) browse(ctx context.Context, evt channel.Event, arg string) error {
	pid := evt.ParticipantID
	if _, ok, err := r.member(ctx, pid); !ok {
		return err
	}
	categories := r.Catalog.List("resource_categories")
	city, rest, ok := r.resolveCity(arg)
	if !ok {
		r.reply(ctx, pid, fmt.Sprintf("Usage: /browse <city> [category]\n\nCities: %s\nCategories: %s",
			strings.Join(r.Catalog.CityNames(), ", "), strings.Join(categories, ", ")))
		return nil
	}
	category := ""
	if rest != "" {
		for _, c := range categories {
			if strings.EqualFold(c, rest) {
				category = c
				break
			}
		}
		if category == "" {
			r.reply(ctx, pid, fmt.Sprintf("Unknown category %q. Categories: %s", rest, strings.Join(categories, ", ")))
			return nil
		}
	}

	list, err := r.Lots.Browse(ctx, pid, city, category)
	if err != nil {
		return err
	}
	owners := make(map[int64]storage.Participant)
	shown := 0
	for _, l := range list {
		owner, seen := owners[l.OwnerID]
		if !seen {
			owner, err = r.Store.GetParticipant(ctx, l.OwnerID)
			if isNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			owners[l.OwnerID] = owner
		}
		r.send(ctx, pid, channel.Message{
			Text:    fmt.Sprintf("%s\n\nBy %s (%d points)", lots.Describe(l), owner.Name, owner.Points),
			Buttons: [][]channel.Button{{deals.ProposeButton(owner.ID)}},
		})
		shown++
	}
	if shown == 0 {
		where := city
		if category != "" {
			where = category + " in " + city
		}
		r.reply(ctx, pid, fmt.Sprintf("No approved lots for %s yet.", where))
	}
	return nil
}

func (r *Router) issueToken(ctx context.Context, evt channel.Event, _ string) error {
	if !r.admin(ctx, evt.ParticipantID) {
		return nil
	}
	token, err := r.Store.CreateToken(ctx)
	if err != nil {
		return err
	}
	r.reply(ctx, evt.ParticipantID, fmt.Sprintf("New invite token: %s\nThe newcomer sends: /start %s", token, token))
	return nil
}

func (r *Router) pending(ctx context.Context, evt channel.Event, _ string) error {
	if !r.admin(ctx, evt.ParticipantID) {
		return nil
	}
	list, err := r.Lots.Pending(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		r.reply(ctx, evt.ParticipantID, "No lots are waiting for moderation.")
		return nil
	}
	for _, l := range list {
		r.send(ctx, evt.ParticipantID, lots.ModerationMessage(l))
	}
	return nil
}
