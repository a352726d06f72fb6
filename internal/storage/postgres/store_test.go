package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/storage"
)

// openTestStore connects to DATABASE_URL. The tests share that database, so
// every test works on participant ids of its own.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := Open(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// freshIDs returns n participant ids unused by earlier runs and removes their
// rows when the test ends.
func freshIDs(t *testing.T, store *Store, n int) []int64 {
	t.Helper()

	base := time.Now().UnixNano()
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = base + int64(i)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		for _, q := range []string{
			`DELETE FROM deals WHERE proposer_id = ANY($1) OR receiver_id = ANY($1)`,
			`DELETE FROM questionnaire_answers WHERE participant_id = ANY($1)`,
			`DELETE FROM participants WHERE id = ANY($1)`,
		} {
			if _, err := store.pool.Exec(ctx, q, ids); err != nil {
				t.Logf("cleanup: %v", err)
			}
		}
	})
	return ids
}

func countAnswers(t *testing.T, store *Store, participantID int64) int {
	t.Helper()

	var n int
	err := store.pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM questionnaire_answers WHERE participant_id = $1`, participantID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count answers: %v", err)
	}
	return n
}

func TestCompleteDealCreditsProposerOnce(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ids := freshIDs(t, store, 2)
	proposer, receiver := ids[0], ids[1]
	for _, p := range []storage.Participant{{ID: proposer, Name: "Ava"}, {ID: receiver, Name: "Bo"}} {
		if err := store.UpsertParticipant(ctx, p); err != nil {
			t.Fatalf("upsert %d: %v", p.ID, err)
		}
	}

	id, err := store.CreateDeal(ctx, proposer, receiver)
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if _, err := store.CompleteDeal(ctx, id); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("complete pending err = %v, want ErrConflict", err)
	}
	if err := store.UpdateDealStatus(ctx, id, storage.DealPending, storage.DealAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	d, err := store.CompleteDeal(ctx, id)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if d.Status != storage.DealCompleted || d.ProposerID != proposer {
		t.Fatalf("deal = %+v, want completed by %d", d, proposer)
	}
	if _, err := store.CompleteDeal(ctx, id); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("repeat complete err = %v, want ErrConflict", err)
	}
	if _, err := store.CompleteDeal(ctx, "not-a-uuid"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("bad id err = %v, want ErrNotFound", err)
	}

	a, err := store.GetParticipant(ctx, proposer)
	if err != nil {
		t.Fatalf("get proposer: %v", err)
	}
	b, err := store.GetParticipant(ctx, receiver)
	if err != nil {
		t.Fatalf("get receiver: %v", err)
	}
	if a.Points != 1 || b.Points != 0 {
		t.Fatalf("points = %d/%d, want 1/0", a.Points, b.Points)
	}
}

func TestRegisterConsumesTokenOnce(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ids := freshIDs(t, store, 2)

	token, err := store.CreateToken(ctx)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	first := storage.Registration{
		Participant: storage.Participant{ID: ids[0], Name: "Ava", Location: "Lisbon"},
		Answers:     []byte(`{"name":"Ava"}`),
		Token:       token,
	}
	if err := store.Register(ctx, first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if ok, _ := store.TokenAvailable(ctx, token); ok {
		t.Fatal("token still available after registration")
	}

	second := storage.Registration{
		Participant: storage.Participant{ID: ids[1], Name: "Bo", Location: "Lisbon"},
		Answers:     []byte(`{"name":"Bo"}`),
		Token:       token,
	}
	if err := store.Register(ctx, second); !errors.Is(err, storage.ErrTokenUsed) {
		t.Fatalf("second register err = %v, want ErrTokenUsed", err)
	}
	if _, err := store.GetParticipant(ctx, ids[1]); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second participant err = %v, want ErrNotFound", err)
	}
	if n := countAnswers(t, store, ids[0]); n != 1 {
		t.Fatalf("answers = %d, want 1", n)
	}
}

func TestRegisterRejectsExistingParticipant(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	id := freshIDs(t, store, 1)[0]

	if err := store.UpsertParticipant(ctx, storage.Participant{ID: id, Name: "Ava", Location: "Lisbon"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.IncrementPoints(ctx, id, 2); err != nil {
		t.Fatalf("increment points: %v", err)
	}
	token, err := store.CreateToken(ctx)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	err = store.Register(ctx, storage.Registration{
		Participant: storage.Participant{ID: id, Name: "Someone else", Location: "Dubai"},
		Answers:     []byte(`{}`),
		Token:       token,
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("register err = %v, want ErrConflict", err)
	}
	p, err := store.GetParticipant(ctx, id)
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if p.Name != "Ava" || p.Location != "Lisbon" || p.Points != 2 {
		t.Fatalf("participant = %+v, want the original profile", p)
	}
	if n := countAnswers(t, store, id); n != 0 {
		t.Fatalf("answers = %d, want 0", n)
	}
	if ok, _ := store.TokenAvailable(ctx, token); !ok {
		t.Fatal("token was consumed by a rejected registration")
	}
}
