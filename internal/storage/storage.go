// Package storage defines the persisted records and the store contract shared
// by the Postgres and SQLite implementations.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a guarded status update finds the record in
	// a different status than expected, or a create finds it already there.
	ErrConflict = errors.New("conflict")
	// ErrTokenUsed is returned when an invite token is unknown or already redeemed.
	ErrTokenUsed = errors.New("invite token unavailable")
)

// Direction says whether a listing offers or asks for a resource.
type Direction string

const (
	DirectionOffer   Direction = "offer"
	DirectionRequest Direction = "request"
)

// ListingStatus is the moderation state of a listing.
type ListingStatus string

const (
	ListingPending  ListingStatus = "pending"
	ListingApproved ListingStatus = "approved"
	ListingRejected ListingStatus = "rejected"
)

// DealStatus is the handshake state of a deal.
type DealStatus string

const (
	DealPending   DealStatus = "pending"
	DealAccepted  DealStatus = "accepted"
	DealDeclined  DealStatus = "declined"
	DealCompleted DealStatus = "completed"
)

// Participant is a registered community member.
type Participant struct {
	ID        int64
	Name      string
	Handle    string
	Location  string
	Bio       string
	Social    string
	Points    int
	CreatedAt time.Time
}

// Listing is a user-submitted lot.
type Listing struct {
	ID           string
	OwnerID      int64
	Direction    Direction
	Title        string
	Description  string
	Category     string
	Location     string
	Availability string
	Status       ListingStatus
	CreatedAt    time.Time
}

// Deal is a two-party handshake.
type Deal struct {
	ID         string
	ProposerID int64
	ReceiverID int64
	Status     DealStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ParticipantFilter selects participants. Zero fields match everything.
type ParticipantFilter struct {
	Location  string
	ExcludeID int64
}

// ListingFilter selects listings. Zero fields match everything.
type ListingFilter struct {
	OwnerID        int64
	ExcludeOwnerID int64
	Status         ListingStatus
	Location       string
	Category       string
}

// DealFilter selects deals where ParticipantID is on either side.
type DealFilter struct {
	ParticipantID int64
}

// Registration is everything written when a questionnaire completes. An empty
// Token registers without consuming an invite.
type Registration struct {
	Participant Participant
	Answers     []byte
	Token       string
}

// Store is the persistence contract.
type Store interface {
	GetParticipant(ctx context.Context, id int64) (Participant, error)
	UpsertParticipant(ctx context.Context, p Participant) error
	ListParticipants(ctx context.Context, filter ParticipantFilter) ([]Participant, error)
	IncrementPoints(ctx context.Context, participantID int64, delta int) error

	CreateListing(ctx context.Context, l Listing) (string, error)
	GetListing(ctx context.Context, id string) (Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error)
	// UpdateListingStatus moves a pending listing to status. It returns
	// ErrConflict when the listing is no longer pending.
	UpdateListingStatus(ctx context.Context, id string, status ListingStatus) error

	CreateDeal(ctx context.Context, proposerID, receiverID int64) (string, error)
	GetDeal(ctx context.Context, id string) (Deal, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]Deal, error)
	// UpdateDealStatus moves a deal from one status to another, returning
	// ErrConflict when the current status is not from.
	UpdateDealStatus(ctx context.Context, id string, from, to DealStatus) error
	// CompleteDeal marks an accepted deal completed and credits the proposer
	// one point in the same transaction.
	CompleteDeal(ctx context.Context, id string) (Deal, error)

	CreateToken(ctx context.Context) (string, error)
	TokenAvailable(ctx context.Context, token string) (bool, error)
	RedeemToken(ctx context.Context, token string) (bool, error)

	RecordQuestionnaireAnswer(ctx context.Context, participantID int64, payload []byte) error
	// Register redeems the token, creates the participant and records the
	// answers atomically. It returns ErrConflict, and writes nothing, when the
	// participant already exists.
	Register(ctx context.Context, r Registration) error

	Close() error
}
