package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/alerts"
	"github.com/sudo-init-do/circle/internal/auth"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/lots"
	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/storage/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	adminID  int64 = 1
	memberID int64 = 2
)

type fakeRouter struct {
	mu     sync.Mutex
	events []channel.Event
	err    error
}

func (f *fakeRouter) Handle(_ context.Context, evt channel.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakeRouter) Dispatch(ctx context.Context, evt channel.Event) { _ = f.Handle(ctx, evt) }

func (f *fakeRouter) seen() []channel.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.Event(nil), f.events...)
}

type env struct {
	e      *echo.Echo
	router *fakeRouter
	hub    *channel.Hub
	store  *sqlite.Store
	lots   *lots.Service
	issuer *auth.Issuer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "circle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.UpsertParticipant(context.Background(), storage.Participant{ID: memberID, Name: "Mia", Location: "Paris"}))

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	hub := channel.NewHub(zap.NewNop())
	svc := lots.NewService(store, alerts.NewDirect(hub, zap.NewNop()), []int64{adminID}, zap.NewNop())
	router := &fakeRouter{}

	e := echo.New()
	NewServer(router, hub, svc, store, issuer, zap.NewNop()).Register(e)
	return &env{e: e, router: router, hub: hub, store: store, lots: svc, issuer: issuer}
}

func (v *env) do(t *testing.T, method, target string, as int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if as != 0 {
		token, err := v.issuer.Issue(as)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func TestPostEvent(t *testing.T) {
	v := newEnv(t)

	rec := v.do(t, http.MethodPost, "/events", memberID, `{"kind":"text","text":"/help","handle":"mia"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, v.router.seen(), 1)
	assert.Equal(t, channel.Event{ParticipantID: memberID, Handle: "mia", Kind: channel.KindText, Text: "/help"}, v.router.seen()[0])

	assert.Equal(t, http.StatusBadRequest, v.do(t, http.MethodPost, "/events", memberID, `{"kind":"shout"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, v.do(t, http.MethodPost, "/events", 0, `{"kind":"text"}`).Code)

	v.router.err = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, v.do(t, http.MethodPost, "/events", memberID, `{"kind":"text","text":"x"}`).Code)
}

func TestAdminRoutes(t *testing.T) {
	v := newEnv(t)
	ctx := context.Background()

	l, err := v.lots.Submit(ctx, storage.Listing{OwnerID: memberID, Direction: storage.DirectionOffer, Title: "Spare desk"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, v.do(t, http.MethodGet, "/admin/lots/pending", memberID, "").Code)

	rec := v.do(t, http.MethodGet, "/admin/lots/pending", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		Lots []ListingResponse `json:"lots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending.Lots, 1)
	assert.Equal(t, l.ID, pending.Lots[0].ID)
	assert.Equal(t, "pending", pending.Lots[0].Status)

	rec = v.do(t, http.MethodPost, "/admin/lots/"+l.ID+"/reject", adminID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got ListingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "rejected", got.Status)

	assert.Equal(t, http.StatusConflict, v.do(t, http.MethodPost, "/admin/lots/"+l.ID+"/approve", adminID, "").Code)
	assert.Equal(t, http.StatusNotFound, v.do(t, http.MethodPost, "/admin/lots/00000000-0000-0000-0000-000000000000/approve", adminID, "").Code)

	rec = v.do(t, http.MethodPost, "/admin/tokens", adminID, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	ok, err := v.store.TokenAvailable(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHealth(t *testing.T) {
	v := newEnv(t)
	rec := v.do(t, http.MethodGet, "/health", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSocket(t *testing.T) {
	v := newEnv(t)
	srv := httptest.NewServer(v.e)
	defer srv.Close()

	token, err := v.issuer.Issue(memberID)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?access_token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return v.hub.Connected(memberID) }, time.Second, 10*time.Millisecond)

	require.NoError(t, v.hub.Send(context.Background(), memberID, channel.Message{Text: "hello"}))
	var frame struct {
		Type    string          `json:"type"`
		Message channel.Message `json:"message"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "send", frame.Type)
	assert.Equal(t, "hello", frame.Message.Text)

	require.NoError(t, conn.WriteJSON(channel.Event{ParticipantID: 999, Kind: channel.KindText, Text: "hi"}))
	require.Eventually(t, func() bool { return len(v.router.seen()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, memberID, v.router.seen()[0].ParticipantID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !v.hub.Connected(memberID) }, time.Second, 10*time.Millisecond)
}
