package lots

import (
	"context"

	"github.com/sudo-init-do/circle/internal/catalog"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/session"
	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/wizard"
)

// FlowName identifies the lot wizard in sessions.
const FlowName = "lot"

// Flow builds the lot submission wizard.
func (s *Service) Flow(cat *catalog.Catalog) (*wizard.Flow, error) {
	return wizard.NewFlow(FlowName, "direction",
		&wizard.ChoiceState{
			Name:    "direction",
			Prompt:  "Are you offering something or looking for something?",
			Field:   "direction",
			Options: []string{string(storage.DirectionOffer), string(storage.DirectionRequest)},
			Labels:  []string{"I offer", "I am looking for"},
			Next:    "category",
		},
		&wizard.ChoiceState{Name: "category", Prompt: "Pick a category.", Field: "category", Options: cat.List("resource_categories"), Next: "title"},
		&wizard.TextState{Name: "title", Prompt: "Give your lot a short title.", Field: "title", Parse: wizard.Line(3, 100), Next: "description"},
		&wizard.TextState{Name: "description", Prompt: "Describe it.", Field: "description", Parse: wizard.Line(1, 1000), Next: "location"},
		&wizard.ChoiceState{Name: "location", Prompt: "Where?", Field: "location", Options: cat.CityNames(), Labels: cat.CityLabels(), Next: "availability"},
		&wizard.TextState{Name: "availability", Prompt: "When is it available? (for example: weekends in June)", Field: "availability", Parse: wizard.Line(1, 200), Next: "commit"},
		&wizard.Terminal{Name: "commit", Commit: s.commit},
	)
}

func (s *Service) commit(ctx context.Context, sess *session.Session) (channel.Message, error) {
	a := sess.Answers
	l, err := s.Submit(ctx, storage.Listing{
		OwnerID:      sess.ParticipantID,
		Direction:    storage.Direction(a.GetText("direction")),
		Title:        a.GetText("title"),
		Description:  a.GetText("description"),
		Category:     a.GetText("category"),
		Location:     a.GetText("location"),
		Availability: a.GetText("availability"),
	})
	if err != nil {
		return channel.Message{}, err
	}
	return channel.Message{Text: "Thanks! Your lot was sent for moderation.\n\n" + Describe(l)}, nil
}
