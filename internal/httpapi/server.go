// Package httpapi exposes the channel transport and the admin REST routes.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/auth"
	"github.com/sudo-init-do/circle/internal/channel"
	mware "github.com/sudo-init-do/circle/internal/middleware"
	"github.com/sudo-init-do/circle/internal/storage"
)

// EventRouter handles inbound participant events.
type EventRouter interface {
	Handle(ctx context.Context, evt channel.Event) error
	Dispatch(ctx context.Context, evt channel.Event)
}

// Moderator is the listing moderation workflow.
type Moderator interface {
	IsAdmin(id int64) bool
	Pending(ctx context.Context) ([]storage.Listing, error)
	Moderate(ctx context.Context, adminID int64, listingID string, decision storage.ListingStatus) (storage.Listing, error)
}

// TokenStore issues invite tokens.
type TokenStore interface {
	CreateToken(ctx context.Context) (string, error)
}

type Server struct {
	router    EventRouter
	hub       *channel.Hub
	moderator Moderator
	tokens    TokenStore
	issuer    *auth.Issuer
	log       *zap.Logger
	upgrader  websocket.Upgrader
}

func NewServer(router EventRouter, hub *channel.Hub, moderator Moderator, tokens TokenStore, issuer *auth.Issuer, log *zap.Logger) *Server {
	return &Server{
		router:    router,
		hub:       hub,
		moderator: moderator,
		tokens:    tokens,
		issuer:    issuer,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts every route on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.health)
	e.GET("/healthz", s.health)

	api := e.Group("")
	api.Use(mware.JWTMiddleware(s.issuer))
	api.POST("/events", s.PostEvent)
	api.GET("/ws", s.Socket)

	admin := e.Group("/admin")
	admin.Use(mware.JWTMiddleware(s.issuer))
	admin.Use(mware.AdminGuard(s.moderator.IsAdmin))
	admin.GET("/lots/pending", s.PendingLots)
	admin.POST("/lots/:id/approve", s.moderate(storage.ListingApproved))
	admin.POST("/lots/:id/reject", s.moderate(storage.ListingRejected))
	admin.POST("/tokens", s.IssueToken)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
