// Package questionnaire is the onboarding flow: name and city, eight optional
// sections behind skip gates, then registration.
package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sudo-init-do/circle/internal/catalog"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/session"
	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/wizard"
)

// FlowName identifies the questionnaire in sessions.
const FlowName = "questionnaire"

// Session pointers set when the flow starts.
const (
	PointerToken  = "token"
	PointerHandle = "handle"
)

const (
	stateName   = "name"
	stateCity   = "city"
	stateCommit = "commit"
)

const (
	textTokenUsed  = "This invite has already been used. Ask an administrator for a new one."
	textRegistered = "You are already registered. Send /cancel and then /help to see what I can do."
)

// Registrar persists a finished questionnaire.
type Registrar interface {
	Register(ctx context.Context, r storage.Registration) error
}

// Seed stores the invite token and the channel handle in a fresh session.
// An empty token registers without an invite.
func Seed(token, handle string) func(*session.Session) {
	return func(s *session.Session) {
		if token != "" {
			s.SetPointer(PointerToken, token)
		}
		if handle != "" {
			s.SetPointer(PointerHandle, handle)
		}
	}
}

type section struct {
	key    string
	title  string
	marker string
	build  func(next string) []wizard.State
}

func gateID(key string) string { return "gate_" + key }

// Flow builds the questionnaire graph over cat.
func Flow(cat *catalog.Catalog, reg Registrar) (*wizard.Flow, error) {
	secs := sections(cat)
	states := []wizard.State{
		&wizard.TextState{
			Name:   stateName,
			Prompt: "Welcome! What is your name?",
			Field:  "name",
			Parse:  wizard.Line(1, 64),
			Next:   stateCity,
		},
		&wizard.ChoiceState{
			Name:    stateCity,
			Prompt:  "Which city are you based in?",
			Field:   "city",
			Options: cat.CityNames(),
			Labels:  cat.CityLabels(),
			Next:    gateID(secs[0].key),
		},
	}
	for i, sec := range secs {
		next := stateCommit
		if i+1 < len(secs) {
			next = gateID(secs[i+1].key)
		}
		inner := sec.build(next)
		states = append(states, &wizard.GateState{
			Name:   gateID(sec.key),
			Prompt: fmt.Sprintf("Section %d of %d: %s. Would you like to fill it in?", i+1, len(secs), sec.title),
			Fill:   inner[0].ID(),
			Skip:   next,
		})
		states = append(states, inner...)
	}
	c := &committer{reg: reg, sections: secs}
	states = append(states, &wizard.Terminal{Name: stateCommit, Commit: c.commit})
	return wizard.NewFlow(FlowName, stateName, states...)
}

func sections(cat *catalog.Catalog) []section {
	return []section{
		{key: "profile", title: "About you", marker: "bio", build: func(next string) []wizard.State {
			return []wizard.State{
				&wizard.TextState{Name: "bio", Prompt: "Tell the community a little about yourself.", Field: "bio", Parse: wizard.Line(1, 1000), Next: "social"},
				&wizard.TextState{Name: "social", Prompt: "Your social handle (send - if you prefer not to share).", Field: "social", Parse: wizard.SocialHandle, Next: "photo"},
				&wizard.MediaState{Name: "photo", Prompt: "Send a photo of yourself.", Field: "photo", Next: next},
			}
		}},
		{key: "skills", title: "Skills", marker: "skills", build: func(next string) []wizard.State {
			tree := cat.Tree(catalog.TreeSkills)
			return []wizard.State{
				&wizard.CategoryState{Name: "skills_category", Prompt: "Which areas do you work in?", Field: "skills", Tree: tree, Items: "skills_items", Next: "offer_formats"},
				&wizard.ItemState{Name: "skills_items", Field: "skills", Tree: tree, Next: "offer_formats"},
				&wizard.MultiState{Name: "offer_formats", Prompt: "How can you help others with these skills?", Field: "offer_formats", Options: cat.List("offer_formats"), Next: "interaction"},
				&wizard.ChoiceState{Name: "interaction", Prompt: "How do you prefer to work together?", Field: "interaction", Options: cat.List("interaction_formats"), Next: "results"},
				&wizard.MultiState{Name: "results", Prompt: "What results can people expect?", Field: "results", Options: cat.List("result_types"), Next: next},
			}
		}},
		{key: "introductions", title: "Introductions", marker: "introductions", build: func(next string) []wizard.State {
			tree := cat.Tree(catalog.TreeIntroductions)
			return []wizard.State{
				&wizard.CategoryState{Name: "intro_category", Prompt: "Who can you introduce people to?", Field: "introductions", Tree: tree, Items: "intro_items", Next: "intro_formats"},
				&wizard.ItemState{Name: "intro_items", Field: "introductions", Tree: tree, Next: "intro_formats"},
				&wizard.MultiState{Name: "intro_formats", Prompt: "How do you make introductions?", Field: "intro_formats", Options: cat.List("intro_formats"), Next: next},
			}
		}},
		{key: "property", title: "Real estate", marker: "property_types", build: func(next string) []wizard.State {
			return []wizard.State{
				&wizard.MultiState{Name: "property_types", Prompt: "What kind of property can you share?", Field: "property_types", Options: cat.List("property_types"), Next: "property_city"},
				&wizard.ChoiceState{Name: "property_city", Prompt: "Where is it?", Field: "property_city", Options: cat.CityNames(), Labels: cat.CityLabels(), Next: "property_usage"},
				&wizard.ChoiceState{Name: "property_usage", Prompt: "How can it be used?", Field: "property_usage", Options: cat.List("property_usage"), Next: "property_duration"},
				&wizard.MultiState{Name: "property_duration", Prompt: "For how long?", Field: "property_duration", Options: cat.List("property_duration"), Next: "capacity"},
				&wizard.TextState{Name: "capacity", Prompt: "How many guests can it host? (1-50)", Field: "capacity", Parse: wizard.Integer(1, 50), Next: next},
			}
		}},
		{key: "vehicles", title: "Vehicles", marker: "vehicle_types", build: func(next string) []wizard.State {
			return []wizard.State{
				&wizard.MultiState{Name: "vehicle_types", Prompt: "Which vehicles can you share?", Field: "vehicle_types", Options: cat.List("vehicle_types"), Next: "vehicle_usage"},
				&wizard.ChoiceState{Name: "vehicle_usage", Prompt: "How can they be used?", Field: "vehicle_usage", Options: cat.List("vehicle_usage"), Next: "vehicle_duration"},
				&wizard.MultiState{Name: "vehicle_duration", Prompt: "For how long?", Field: "vehicle_duration", Options: cat.List("vehicle_duration"), Next: "vehicle_conditions"},
				&wizard.MultiState{Name: "vehicle_conditions", Prompt: "On what terms?", Field: "vehicle_conditions", Options: cat.List("vehicle_conditions"), Next: "passengers"},
				&wizard.ChoiceState{Name: "passengers", Prompt: "How many passengers?", Field: "passengers", Options: cat.List("vehicle_passengers"), Next: next},
			}
		}},
		{key: "aircraft", title: "Aircraft", marker: "aircraft_types", build: func(next string) []wizard.State {
			return []wizard.State{
				&wizard.MultiState{Name: "aircraft_types", Prompt: "Which aircraft can you share?", Field: "aircraft_types", Options: cat.List("aircraft_types"), Next: "aircraft_usage"},
				&wizard.ChoiceState{Name: "aircraft_usage", Prompt: "How can it be used?", Field: "aircraft_usage", Options: cat.List("aircraft_usage"), Next: "aircraft_safety"},
				&wizard.MultiState{Name: "aircraft_safety", Prompt: "What safety requirements apply?", Field: "aircraft_safety", Options: cat.List("aircraft_safety"), Next: "aircraft_expenses"},
				&wizard.MultiState{Name: "aircraft_expenses", Prompt: "Which expenses are covered by the guest?", Field: "aircraft_expenses", Options: cat.List("aircraft_expenses"), Next: next},
			}
		}},
		{key: "vessels", title: "Vessels", marker: "vessel_types", build: func(next string) []wizard.State {
			return []wizard.State{
				&wizard.MultiState{Name: "vessel_types", Prompt: "Which vessels can you share?", Field: "vessel_types", Options: cat.List("vessel_types"), Next: "vessel_usage"},
				&wizard.ChoiceState{Name: "vessel_usage", Prompt: "How can it be used?", Field: "vessel_usage", Options: cat.List("vessel_usage"), Next: "vessel_safety"},
				&wizard.MultiState{Name: "vessel_safety", Prompt: "What safety requirements apply?", Field: "vessel_safety", Options: cat.List("vessel_safety"), Next: "vessel_financial"},
				&wizard.MultiState{Name: "vessel_financial", Prompt: "What are the financial terms?", Field: "vessel_financial", Options: cat.List("vessel_financial"), Next: next},
			}
		}},
		{key: "specialists", title: "Specialists", marker: "specialist_contacts", build: func(next string) []wizard.State {
			tree := cat.Tree(catalog.TreeSpecialists)
			return []wizard.State{
				&wizard.CategoryState{Name: "specialist_category", Prompt: "Which specialist can you recommend?", Field: "specialists", Record: "specialist", Tree: tree, Items: "specialist_items", Next: "connection"},
				&wizard.ItemState{Name: "specialist_items", Field: "specialists", Record: "specialist", Tree: tree, Next: "connection"},
				&wizard.ChoiceState{Name: "connection", Prompt: "How do you know them?", Field: "connection", Record: "specialist", Options: cat.List("specialist_connection"), Next: "contact"},
				&wizard.TextState{Name: "contact", Prompt: "How can members reach them?", Field: "contact", Record: "specialist", Parse: wizard.Line(1, 200), Next: "specialist_more"},
				&wizard.LoopState{Name: "specialist_more", Prompt: "Would you like to add another specialist?", Record: "specialist", List: "specialist_contacts", Again: "specialist_category", Next: next},
			}
		}},
	}
}

type committer struct {
	reg      Registrar
	sections []section
}

func (c *committer) commit(ctx context.Context, s *session.Session) (channel.Message, error) {
	a := s.Answers
	payload, err := json.Marshal(a)
	if err != nil {
		return channel.Message{}, fmt.Errorf("encode answers: %w", err)
	}
	p := storage.Participant{
		ID:       s.ParticipantID,
		Name:     a.GetText("name"),
		Handle:   s.Pointer(PointerHandle),
		Location: a.GetText("city"),
		Bio:      a.GetText("bio"),
		Social:   a.GetText("social"),
	}
	err = c.reg.Register(ctx, storage.Registration{Participant: p, Answers: payload, Token: s.Pointer(PointerToken)})
	switch {
	case errors.Is(err, storage.ErrTokenUsed):
		return channel.Message{}, &wizard.CommitError{Message: textTokenUsed, Err: err}
	case errors.Is(err, storage.ErrConflict):
		return channel.Message{}, &wizard.CommitError{Message: textRegistered, Err: err}
	case err != nil:
		return channel.Message{}, err
	}
	return channel.Message{Text: c.summary(p, a)}, nil
}

func (c *committer) summary(p storage.Participant, a *session.Answers) string {
	var filled []string
	for _, sec := range c.sections {
		if _, ok := a.Get(sec.marker); ok {
			filled = append(filled, sec.title)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to the community, %s!\n", p.Name)
	fmt.Fprintf(&b, "City: %s\n", p.Location)
	if len(filled) == 0 {
		b.WriteString("Sections: none yet\n")
	} else {
		fmt.Fprintf(&b, "Sections: %s\n", strings.Join(filled, ", "))
	}
	b.WriteString("\nSend /help to see what you can do next.")
	return b.String()
}
