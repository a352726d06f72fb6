package alerts

import (
	"time"

	"github.com/sudo-init-do/circle/internal/channel"
)

// Task type constants
const (
	TaskNotifyMessage = "notify:message"
)

// Queue names
const (
	QueueNotifications = "notifications"
)

// NotifyPayload is the queued form of one outbound message.
type NotifyPayload struct {
	ParticipantID int64           `json:"participant_id"`
	Message       channel.Message `json:"message"`
	SentAt        time.Time       `json:"sent_at"`
}
