package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/channel"
)

// Worker runs queued notifications against a channel.
type Worker struct {
	server *asynq.Server
	ch     channel.Channel
	log    *zap.Logger
}

// NewWorker builds the asynq server for notification tasks.
func NewWorker(opt asynq.RedisConnOpt, ch channel.Channel, log *zap.Logger) *Worker {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueNotifications: 10,
		},
	})
	return &Worker{server: server, ch: ch, log: log}
}

// Mux returns the handler table.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNotifyMessage, w.handleNotify)
	return mux
}

// Start runs the worker in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.Mux()); err != nil {
		return fmt.Errorf("start notification worker: %w", err)
	}
	w.log.Info("notification worker started")
	return nil
}

// Shutdown stops the worker after in-flight tasks finish.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleNotify(ctx context.Context, t *asynq.Task) error {
	var p NotifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode notify payload: %v: %w", err, asynq.SkipRetry)
	}
	err := w.ch.Send(ctx, p.ParticipantID, p.Message)
	if errors.Is(err, channel.ErrUnreachable) {
		w.log.Warn("notification dropped", zap.Int64("participant_id", p.ParticipantID), zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	w.log.Debug("notification sent", zap.Int64("participant_id", p.ParticipantID))
	return nil
}
