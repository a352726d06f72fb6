package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/channel"
)

// Queue defers delivery to the asynq worker.
type Queue struct {
	client *asynq.Client
	log    *zap.Logger
}

// NewQueue wraps an asynq client.
func NewQueue(client *asynq.Client, log *zap.Logger) *Queue {
	return &Queue{client: client, log: log}
}

// NewNotifyTask builds the task for one outbound message.
func NewNotifyTask(participantID int64, msg channel.Message) (*asynq.Task, error) {
	b, err := json.Marshal(NotifyPayload{ParticipantID: participantID, Message: msg, SentAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyMessage, b, asynq.MaxRetry(3), asynq.Timeout(30*time.Second)), nil
}

func (q *Queue) Notify(ctx context.Context, participantID int64, msg channel.Message) {
	task, err := NewNotifyTask(participantID, msg)
	if err != nil {
		q.log.Warn("notification not encoded", zap.Int64("participant_id", participantID), zap.Error(err))
		return
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.Queue(QueueNotifications)); err != nil {
		q.log.Warn("notification not enqueued", zap.Int64("participant_id", participantID), zap.Error(err))
	}
}
