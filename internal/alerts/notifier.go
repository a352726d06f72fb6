// Package alerts delivers best-effort notifications to participants. Delivery
// failures are logged and never returned to the caller, so a notification can
// not undo the transition that produced it.
package alerts

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sudo-init-do/circle/internal/channel"
)

// Notifier sends a message to one participant without failing the caller.
type Notifier interface {
	Notify(ctx context.Context, participantID int64, msg channel.Message)
}

// Direct sends synchronously through a channel.
type Direct struct {
	ch  channel.Channel
	log *zap.Logger
}

// NewDirect returns a Notifier that writes straight to ch.
func NewDirect(ch channel.Channel, log *zap.Logger) *Direct {
	return &Direct{ch: ch, log: log}
}

func (d *Direct) Notify(ctx context.Context, participantID int64, msg channel.Message) {
	if err := d.ch.Send(ctx, participantID, msg); err != nil {
		d.log.Warn("notification not delivered", zap.Int64("participant_id", participantID), zap.Error(err))
	}
}

const fanOutLimit = 8

// NotifyAll sends msg to every id concurrently and waits for all sends.
func NotifyAll(ctx context.Context, n Notifier, ids []int64, msg channel.Message) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, id := range ids {
		g.Go(func() error {
			n.Notify(gctx, id, msg)
			return nil
		})
	}
	_ = g.Wait()
}

// Discard logs and drops notifications. It serves processes that have no
// channel attached, such as the admin CLI in direct mode.
type Discard struct {
	log *zap.Logger
}

func NewDiscard(log *zap.Logger) *Discard {
	return &Discard{log: log}
}

func (d *Discard) Notify(_ context.Context, participantID int64, msg channel.Message) {
	d.log.Info("notification dropped", zap.Int64("participant_id", participantID), zap.String("text", msg.Text))
}
