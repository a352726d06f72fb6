package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHubSendUnreachable(t *testing.T) {
	h := NewHub(zap.NewNop())
	err := h.Send(context.Background(), 5, Message{Text: "hi"})
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, h.EditLast(context.Background(), 5, Message{Text: "hi"}), ErrUnreachable)
}

func TestHubRoundTrip(t *testing.T) {
	h := NewHub(zap.NewNop())
	events := make(chan Event, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(r.Context(), 9, conn, func(_ context.Context, e Event) { events <- e })
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Connected(9) }, time.Second, 10*time.Millisecond)

	msg := Message{Text: "Pick one", Buttons: [][]Button{{{Label: "A", Payload: "pick:0"}}}}
	require.NoError(t, h.Send(context.Background(), 9, msg))

	var got frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, FrameSend, got.Type)
	assert.Equal(t, msg, got.Message)

	require.NoError(t, conn.WriteJSON(Event{ParticipantID: 1, Kind: KindSelection, Payload: "pick:0"}))
	select {
	case e := <-events:
		assert.Equal(t, int64(9), e.ParticipantID)
		assert.Equal(t, "pick:0", e.Payload)
	case <-time.After(time.Second):
		t.Fatal("no event dispatched")
	}

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !h.Connected(9) }, time.Second, 10*time.Millisecond)
}

func TestMediaIsImage(t *testing.T) {
	assert.True(t, (&Media{FileID: "f", MIMEType: "image/jpeg"}).IsImage())
	assert.False(t, (&Media{FileID: "f", MIMEType: "application/pdf"}).IsImage())
	assert.False(t, (*Media)(nil).IsImage())
}

func TestMessagePayloads(t *testing.T) {
	m := Message{Buttons: [][]Button{{{Payload: "a"}, {Payload: "b"}}, {{Payload: "c"}}}}
	assert.Equal(t, []string{"a", "b", "c"}, m.Payloads())
}
