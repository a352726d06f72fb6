package bot

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/alerts"
	"github.com/sudo-init-do/circle/internal/catalog"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/deals"
	"github.com/sudo-init-do/circle/internal/lots"
	"github.com/sudo-init-do/circle/internal/questionnaire"
	"github.com/sudo-init-do/circle/internal/session"
	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/storage/sqlite"
	"github.com/sudo-init-do/circle/internal/wizard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	admin    int64 = 1
	newcomer int64 = 20
	alice    int64 = 30
	bob      int64 = 31
)

type world struct {
	t        *testing.T
	store    *sqlite.Store
	sessions *session.MemoryStore
	rec      *channel.Recorder
	router   *Router
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "circle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for id, name := range map[int64]string{alice: "Alice", bob: "Bob"} {
		require.NoError(t, store.UpsertParticipant(ctx, storage.Participant{ID: id, Name: name, Location: "Lisbon"}))
	}

	cat := catalog.MustDefault()
	rec := channel.NewRecorder()
	log := zap.NewNop()
	notify := alerts.NewDirect(rec, log)
	lotSvc := lots.NewService(store, notify, []int64{admin}, log)

	onboarding, err := questionnaire.Flow(cat, store)
	require.NoError(t, err)
	lotFlow, err := lotSvc.Flow(cat)
	require.NoError(t, err)
	sessions := session.NewMemoryStore()

	return &world{
		t:        t,
		store:    store,
		sessions: sessions,
		rec:      rec,
		router: New(Deps{
			Store:   store,
			Engine:  wizard.NewEngine(sessions, rec, log, onboarding, lotFlow),
			Channel: rec,
			Lots:    lotSvc,
			Deals:   deals.NewService(store, notify, log),
			Catalog: cat,
			Log:     log,
		}),
	}
}

func (w *world) text(pid int64, s string) {
	w.t.Helper()
	require.NoError(w.t, w.router.Handle(context.Background(), channel.Event{ParticipantID: pid, Kind: channel.KindText, Text: s}))
}

func (w *world) press(pid int64, payload string) {
	w.t.Helper()
	require.NoError(w.t, w.router.Handle(context.Background(), channel.Event{ParticipantID: pid, Kind: channel.KindSelection, Payload: payload}))
}

func (w *world) last(pid int64) channel.Message {
	w.t.Helper()
	msg, ok := w.rec.Last(pid)
	require.True(w.t, ok, "nothing sent to %d", pid)
	return msg
}

// tap presses the wizard button v (option i) on the participant's last prompt.
func (w *world) tap(pid int64, v wizard.Verb, i ...int) {
	w.t.Helper()
	w.press(pid, w.button(pid, v, i...))
}

func (w *world) button(pid int64, v wizard.Verb, i ...int) string {
	w.t.Helper()
	idx := 0
	if len(i) > 0 {
		idx = i[0]
	}
	msg := w.last(pid)
	for _, p := range msg.Payloads() {
		if a, ok := wizard.ParseAction(p); ok && a.Verb == v && a.Index == idx {
			return p
		}
	}
	w.t.Fatalf("no %s %d button on %q", v, idx, msg.Text)
	return ""
}

func TestStartRequiresInvite(t *testing.T) {
	w := newWorld(t)

	w.text(newcomer, "/start")
	assert.Contains(t, w.last(newcomer).Text, "invite only")

	w.text(newcomer, "/start bogus")
	assert.Contains(t, w.last(newcomer).Text, "not valid")
	assert.Equal(t, 0, w.sessions.Len())
}

func TestInviteRegistration(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.text(admin, "/token")
	reply := w.last(admin).Text
	require.Contains(t, reply, "/start ")
	token := strings.TrimSpace(reply[strings.LastIndex(reply, " "):])

	w.text(newcomer, "/start "+token)
	assert.Equal(t, "Welcome! What is your name?", w.last(newcomer).Text)

	w.text(newcomer, "Nina")
	w.tap(newcomer, wizard.VerbPick, slices.Index(catalog.MustDefault().CityNames(), "Lisbon"))
	for range 8 {
		w.tap(newcomer, wizard.VerbSkip)
	}

	assert.Contains(t, w.last(newcomer).Text, "Welcome to the community, Nina!")
	p, err := w.store.GetParticipant(ctx, newcomer)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", p.Location)

	w.text(newcomer, "/start")
	assert.Contains(t, w.last(newcomer).Text, "Welcome back, Nina!")

	w.text(bob+100, "/start "+token)
	assert.Contains(t, w.last(bob+100).Text, "not valid")
}

func TestAdminRegistersWithoutToken(t *testing.T) {
	w := newWorld(t)
	w.text(admin, "/start")
	assert.Equal(t, "Welcome! What is your name?", w.last(admin).Text)
}

func TestCancelClearsSession(t *testing.T) {
	w := newWorld(t)
	w.text(alice, "/lot")
	assert.Equal(t, 1, w.sessions.Len())

	w.press(alice, wizard.PayloadCancel)
	assert.Equal(t, 0, w.sessions.Len())
	assert.Equal(t, textCanceled, w.last(alice).Text)

	w.text(alice, "/lot")
	w.text(alice, "/cancel")
	assert.Equal(t, 0, w.sessions.Len())
}

func TestIdleTextAndStaleButtons(t *testing.T) {
	w := newWorld(t)
	w.text(alice, "hello")
	assert.Equal(t, textIdle, w.last(alice).Text)

	w.press(alice, "w:direction:pick:0")
	assert.Equal(t, textExpired, w.last(alice).Text)

	w.press(alice, "zzz:1")
	assert.Equal(t, textExpired, w.last(alice).Text)

	w.text(alice, "/nope")
	assert.Equal(t, textUnknown, w.last(alice).Text)
}

func TestUnregisteredCannotUseMemberCommands(t *testing.T) {
	w := newWorld(t)
	for _, cmd := range []string{"/lot", "/profile", "/deals", "/lots", "/members Lisbon", "/browse Lisbon"} {
		w.text(newcomer, cmd)
		assert.Equal(t, textMembers, w.last(newcomer).Text, cmd)
	}
	assert.Equal(t, 0, w.sessions.Len())
}

func TestAdminCommandsAreGuarded(t *testing.T) {
	w := newWorld(t)
	w.text(alice, "/token")
	assert.Contains(t, w.last(alice).Text, "administrators")
	w.text(alice, "/pending")
	assert.Contains(t, w.last(alice).Text, "administrators")
}

func TestLotSubmissionAndModeration(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.text(alice, "/lot")
	w.tap(alice, wizard.VerbPick, 0)
	w.tap(alice, wizard.VerbPick, 0)
	w.text(alice, "Guest room in Alfama")
	w.text(alice, "Quiet room with a view.")
	w.tap(alice, wizard.VerbPick, 0)
	w.text(alice, "Any weekend")
	assert.Contains(t, w.last(alice).Text, "sent for moderation")

	moderation := w.last(admin)
	require.Len(t, moderation.Payloads(), 2)
	approve := moderation.Payloads()[0]

	w.text(admin, "/pending")
	assert.Equal(t, moderation.Payloads(), w.last(admin).Payloads())

	w.press(bob, approve)
	assert.Equal(t, "Only administrators can moderate lots.", w.last(bob).Text)

	w.press(admin, approve)
	assert.Equal(t, `Lot "Guest room in Alfama" approved.`, w.last(admin).Text)
	assert.Equal(t, `Your lot "Guest room in Alfama" was approved.`, w.last(alice).Text)

	w.press(admin, moderation.Payloads()[1])
	assert.Equal(t, "This lot was already moderated.", w.last(admin).Text)

	owned, err := w.store.ListListings(ctx, storage.ListingFilter{OwnerID: alice})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, storage.ListingApproved, owned[0].Status)

	w.text(alice, "/lots")
	assert.Contains(t, w.last(alice).Text, "Status: Approved")
}

func TestBrowseApprovedLots(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	approved := func(owner int64, title, city, category string) {
		t.Helper()
		id, err := w.store.CreateListing(ctx, storage.Listing{
			OwnerID: owner, Direction: storage.DirectionOffer, Title: title, Category: category, Location: city,
		})
		require.NoError(t, err)
		require.NoError(t, w.store.UpdateListingStatus(ctx, id, storage.ListingApproved))
	}
	approved(alice, "Vintage Vespa", "Lisbon", "Cars")
	approved(alice, "Sea view flat", "Lisbon", "Real Estate")
	approved(alice, "Desert camp", "Dubai", "Real Estate")
	approved(bob, "Harbour boat", "Lisbon", "Cars")
	_, err := w.store.CreateListing(ctx, storage.Listing{OwnerID: alice, Title: "Still pending", Category: "Cars", Location: "Lisbon"})
	require.NoError(t, err)
	require.NoError(t, w.store.IncrementPoints(ctx, alice, 2))

	w.rec.Reset()
	w.text(bob, "/browse lisbon cars")
	msgs := w.rec.Messages(bob)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].Text, "Offer: Vintage Vespa"))
	assert.Contains(t, msgs[0].Text, "By Alice (2 points)")
	assert.Equal(t, []string{deals.ProposeButton(alice).Payload}, msgs[0].Payloads())

	w.rec.Reset()
	w.text(bob, "/browse Lisbon")
	var titles []string
	for _, m := range w.rec.Messages(bob) {
		first, _, _ := strings.Cut(m.Text, "\n")
		titles = append(titles, first)
	}
	assert.ElementsMatch(t, []string{"Offer: Vintage Vespa", "Offer: Sea view flat"}, titles)

	w.text(alice, "/browse Dubai")
	assert.Equal(t, "No approved lots for Dubai yet.", w.last(alice).Text)
	w.text(alice, "/browse Lisbon Real Estate")
	assert.Equal(t, "No approved lots for Real Estate in Lisbon yet.", w.last(alice).Text)
	w.text(alice, "/browse Lisbon spaceships")
	assert.Contains(t, w.last(alice).Text, `Unknown category "spaceships"`)
	w.text(alice, "/browse Atlantis")
	assert.True(t, strings.HasPrefix(w.last(alice).Text, "Usage: /browse <city> [category]"))

	w.press(bob, msgs[0].Payloads()[0])
	assert.Equal(t, "Your deal proposal was sent.", w.last(bob).Text)
}

func TestDealThroughButtons(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.text(alice, "/members lisbon")
	offer := w.last(alice)
	assert.Equal(t, "Bob", offer.Text)
	require.Equal(t, []string{deals.ProposeButton(bob).Payload}, offer.Payloads())

	w.press(alice, offer.Payloads()[0])
	assert.Equal(t, "Your deal proposal was sent.", w.last(alice).Text)

	invite := w.last(bob)
	require.Len(t, invite.Payloads(), 2)
	accept, decline := invite.Payloads()[0], invite.Payloads()[1]

	w.press(alice, decline)
	assert.Equal(t, "Only the invited member can answer this deal.", w.last(alice).Text)

	w.press(bob, accept)
	assert.Equal(t, "Deal accepted.", w.last(bob).Text)
	complete := w.last(alice).Payloads()[0]

	w.press(alice, complete)
	confirm := w.last(bob).Payloads()[0]
	w.press(bob, confirm)
	assert.Equal(t, "Deal completed. Thank you!", w.last(bob).Text)
	w.press(bob, confirm)
	assert.Equal(t, "This deal is already completed.", w.last(bob).Text)

	a, err := w.store.GetParticipant(ctx, alice)
	require.NoError(t, err)
	b, err := w.store.GetParticipant(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Points)
	assert.Equal(t, 0, b.Points)

	w.text(alice, "/profile")
	assert.Contains(t, w.last(alice).Text, "Points: 1")
	w.text(alice, "/deals")
	assert.Contains(t, w.last(alice).Text, "You proposed to Bob: Completed")
}

func TestSelfDealIsRejectedQuietly(t *testing.T) {
	w := newWorld(t)
	w.press(alice, deals.ProposeButton(alice).Payload)
	assert.Equal(t, "You cannot propose a deal to yourself.", w.last(alice).Text)
}

func TestConcurrentEventsAreSerialized(t *testing.T) {
	w := newWorld(t)
	w.text(alice, "/lot")
	offer := w.button(alice, wizard.VerbPick, 0)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.router.Handle(context.Background(), channel.Event{ParticipantID: alice, Kind: channel.KindSelection, Payload: offer})
		}()
	}
	wg.Wait()

	s, err := w.sessions.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"direction"}, s.History)
	assert.Equal(t, "category", s.State)
	assert.Equal(t, string(storage.DirectionOffer), s.Answers.GetText("direction"))
}
