package alerts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sudo-init-do/circle/internal/channel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDirectSwallowsUnreachable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := channel.NewRecorder()
	rec.Block(2)
	n := NewDirect(rec, zap.New(core))

	n.Notify(context.Background(), 2, channel.Message{Text: "hello"})
	n.Notify(context.Background(), 3, channel.Message{Text: "hello"})

	assert.Empty(t, rec.Messages(2))
	assert.Len(t, rec.Messages(3), 1)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "notification not delivered", logs.All()[0].Message)
}

func TestNotifyAllReachesEveryone(t *testing.T) {
	rec := channel.NewRecorder()
	rec.Block(4)
	n := NewDirect(rec, zap.NewNop())
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	NotifyAll(context.Background(), n, ids, channel.Message{Text: "new lot"})

	for _, id := range ids {
		want := 1
		if id == 4 {
			want = 0
		}
		assert.Len(t, rec.Messages(id), want, "participant %d", id)
	}
}

func TestWorkerHandleNotify(t *testing.T) {
	rec := channel.NewRecorder()
	w := &Worker{ch: rec, log: zap.NewNop()}
	msg := channel.Message{Text: "deal accepted", Buttons: [][]channel.Button{{{Label: "Mark complete", Payload: "deal:complete:x"}}}}

	task, err := NewNotifyTask(7, msg)
	require.NoError(t, err)
	assert.Equal(t, TaskNotifyMessage, task.Type())

	var p NotifyPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, int64(7), p.ParticipantID)

	require.NoError(t, w.handleNotify(context.Background(), task))
	got, ok := rec.Last(7)
	require.True(t, ok)
	assert.Equal(t, msg, got)

	rec.Block(8)
	blocked, err := NewNotifyTask(8, msg)
	require.NoError(t, err)
	assert.NoError(t, w.handleNotify(context.Background(), blocked))

	bad := asynq.NewTask(TaskNotifyMessage, []byte("{"))
	assert.ErrorIs(t, w.handleNotify(context.Background(), bad), asynq.SkipRetry)
}

func TestDiscardLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewDiscard(zap.New(core)).Notify(context.Background(), 8, channel.Message{Text: "approved"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "notification dropped", logs.All()[0].Message)
	assert.Equal(t, int64(8), logs.All()[0].ContextMap()["participant_id"])
}
