package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/channel"
	mware "github.com/sudo-init-do/circle/internal/middleware"
)

type EventRequest struct {
	Kind    channel.EventKind `json:"kind"`
	Text    string            `json:"text"`
	Payload string            `json:"payload"`
	Handle  string            `json:"handle"`
	Media   *channel.Media    `json:"media"`
}

// PostEvent accepts one event from the authenticated participant. Replies go
// out through the channel, not the response body.
func (s *Server) PostEvent(c echo.Context) error {
	pid, ok := mware.ParticipantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	req := new(EventRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	switch req.Kind {
	case channel.KindText, channel.KindSelection, channel.KindMedia:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown event kind"})
	}

	evt := channel.Event{
		ParticipantID: pid,
		Handle:        req.Handle,
		Kind:          req.Kind,
		Text:          req.Text,
		Payload:       req.Payload,
		Media:         req.Media,
	}
	if err := s.router.Handle(c.Request().Context(), evt); err != nil {
		s.log.Error("event failed", zap.Int64("participant_id", pid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "event failed"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted"})
}

// Socket upgrades to a websocket that carries outbound frames and inbound
// events for the authenticated participant.
func (s *Server) Socket(c echo.Context) error {
	pid, ok := mware.ParticipantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	s.log.Debug("socket connected", zap.Int64("participant_id", pid))
	s.hub.Serve(c.Request().Context(), pid, conn, s.router.Dispatch)
	s.log.Debug("socket closed", zap.Int64("participant_id", pid))
	return nil
}
