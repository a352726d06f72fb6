// Package lots runs the listing submission wizard and the moderation workflow
// that moves a listing from pending to approved or rejected.
package lots

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sudo-init-do/circle/internal/alerts"
	"github.com/sudo-init-do/circle/internal/channel"
	"github.com/sudo-init-do/circle/internal/storage"
)

var (
	// ErrNotPending is returned when a listing was already moderated.
	ErrNotPending = errors.New("listing is not pending")
	// ErrNotAdmin is returned when a non-administrator tries to moderate.
	ErrNotAdmin = errors.New("not an administrator")
	// ErrBadDecision is returned for a decision other than approve or reject.
	ErrBadDecision = errors.New("unsupported moderation decision")
)

// Store is the persistence the workflow needs.
type Store interface {
	CreateListing(ctx context.Context, l storage.Listing) (string, error)
	GetListing(ctx context.Context, id string) (storage.Listing, error)
	ListListings(ctx context.Context, filter storage.ListingFilter) ([]storage.Listing, error)
	UpdateListingStatus(ctx context.Context, id string, status storage.ListingStatus) error
}

// Service submits and moderates listings.
type Service struct {
	store  Store
	notify alerts.Notifier
	admins []int64
	log    *zap.Logger
}

// NewService returns a Service. admins is the moderation allow-list.
func NewService(store Store, notify alerts.Notifier, admins []int64, log *zap.Logger) *Service {
	return &Service{store: store, notify: notify, admins: slices.Clone(admins), log: log}
}

// IsAdmin reports allow-list membership.
func (s *Service) IsAdmin(id int64) bool {
	return slices.Contains(s.admins, id)
}

// Submit stores l as pending and alerts every administrator.
func (s *Service) Submit(ctx context.Context, l storage.Listing) (storage.Listing, error) {
	id, err := s.store.CreateListing(ctx, l)
	if err != nil {
		return storage.Listing{}, fmt.Errorf("submit listing: %w", err)
	}
	// The listing is stored from here on, so nothing below may fail the submit.
	created := l
	created.ID = id
	created.Status = storage.ListingPending
	created.CreatedAt = time.Now().UTC()
	s.log.Info("listing submitted", zap.String("listing_id", id), zap.Int64("owner_id", l.OwnerID))

	alerts.NotifyAll(ctx, s.notify, s.admins, ModerationMessage(created))
	return created, nil
}

// Moderate applies an administrator decision to a pending listing.
func (s *Service) Moderate(ctx context.Context, adminID int64, listingID string, decision storage.ListingStatus) (storage.Listing, error) {
	if !s.IsAdmin(adminID) {
		return storage.Listing{}, ErrNotAdmin
	}
	if decision != storage.ListingApproved && decision != storage.ListingRejected {
		return storage.Listing{}, ErrBadDecision
	}
	err := s.store.UpdateListingStatus(ctx, listingID, decision)
	if errors.Is(err, storage.ErrConflict) {
		return storage.Listing{}, ErrNotPending
	}
	if err != nil {
		return storage.Listing{}, err
	}
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return storage.Listing{}, fmt.Errorf("reload listing: %w", err)
	}
	s.log.Info("listing moderated",
		zap.String("listing_id", listingID),
		zap.Int64("admin_id", adminID),
		zap.String("status", string(decision)))

	s.notify.Notify(ctx, l.OwnerID, channel.Message{
		Text: fmt.Sprintf("Your lot \"%s\" was %s.", l.Title, decision),
	})
	return l, nil
}

// Pending lists listings awaiting moderation.
func (s *Service) Pending(ctx context.Context) ([]storage.Listing, error) {
	return s.store.ListListings(ctx, storage.ListingFilter{Status: storage.ListingPending})
}

// Owned lists a participant's listings.
func (s *Service) Owned(ctx context.Context, ownerID int64) ([]storage.Listing, error) {
	return s.store.ListListings(ctx, storage.ListingFilter{OwnerID: ownerID})
}

// Browse lists approved listings in location, optionally narrowed to one
// category. The viewer's own listings are left out.
func (s *Service) Browse(ctx context.Context, viewerID int64, location, category string) ([]storage.Listing, error) {
	return s.store.ListListings(ctx, storage.ListingFilter{
		ExcludeOwnerID: viewerID,
		Status:         storage.ListingApproved,
		Location:       location,
		Category:       category,
	})
}

var titleCase = cases.Title(language.English)

// Describe renders a listing for chat.
func Describe(l storage.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", titleCase.String(string(l.Direction)), l.Title)
	if l.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", l.Category)
	}
	if l.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", l.Location)
	}
	if l.Availability != "" {
		fmt.Fprintf(&b, "Availability: %s\n", l.Availability)
	}
	if l.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", l.Description)
	}
	fmt.Fprintf(&b, "\nStatus: %s", titleCase.String(string(l.Status)))
	return b.String()
}

// ModerationMessage is what administrators receive for a pending listing.
func ModerationMessage(l storage.Listing) channel.Message {
	return channel.Message{
		Text: "New lot awaiting moderation\n\n" + Describe(l),
		Buttons: [][]channel.Button{{
			{Label: "Approve", Payload: Action{Decision: storage.ListingApproved, ListingID: l.ID}.Payload()},
			{Label: "Reject", Payload: Action{Decision: storage.ListingRejected, ListingID: l.ID}.Payload()},
		}},
	}
}
