package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/lots"
	mware "github.com/sudo-init-do/circle/internal/middleware"
	"github.com/sudo-init-do/circle/internal/storage"
)

type ListingResponse struct {
	ID           string    `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	Direction    string    `json:"direction"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Location     string    `json:"location"`
	Availability string    `json:"availability"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func toListingResponse(l storage.Listing) ListingResponse {
	return ListingResponse{
		ID:           l.ID,
		OwnerID:      l.OwnerID,
		Direction:    string(l.Direction),
		Title:        l.Title,
		Description:  l.Description,
		Category:     l.Category,
		Location:     l.Location,
		Availability: l.Availability,
		Status:       string(l.Status),
		CreatedAt:    l.CreatedAt,
	}
}

// PendingLots lists listings awaiting moderation.
func (s *Server) PendingLots(c echo.Context) error {
	list, err := s.moderator.Pending(c.Request().Context())
	if err != nil {
		s.log.Error("list pending lots", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch lots"})
	}
	out := make([]ListingResponse, len(list))
	for i, l := range list {
		out[i] = toListingResponse(l)
	}
	return c.JSON(http.StatusOK, echo.Map{"lots": out})
}

func (s *Server) moderate(decision storage.ListingStatus) echo.HandlerFunc {
	return func(c echo.Context) error {
		adminID, _ := mware.ParticipantID(c)
		id := c.Param("id")
		if id == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
		}

		l, err := s.moderator.Moderate(c.Request().Context(), adminID, id, decision)
		switch {
		case errors.Is(err, lots.ErrNotAdmin):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access only"})
		case errors.Is(err, storage.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lot not found"})
		case errors.Is(err, lots.ErrNotPending):
			return c.JSON(http.StatusConflict, echo.Map{"error": "lot not pending"})
		case err != nil:
			s.log.Error("moderate lot", zap.String("listing_id", id), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to moderate lot"})
		}
		return c.JSON(http.StatusOK, toListingResponse(l))
	}
}

// IssueToken creates a single-use invite token.
func (s *Server) IssueToken(c echo.Context) error {
	token, err := s.tokens.CreateToken(c.Request().Context())
	if err != nil {
		s.log.Error("issue token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue token"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": token})
}
