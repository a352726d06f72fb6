// Package postgres provides a pgx-backed storage.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/storage"
)

// Store persists community state in Postgres.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects to dsn, pings it and ensures the schema.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("connected to postgres")
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isConstraint(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	return false
}

const participantColumns = `id, name, handle, location, bio, social, points, created_at`

func scanParticipant(row pgx.Row) (storage.Participant, error) {
	var p storage.Participant
	err := row.Scan(&p.ID, &p.Name, &p.Handle, &p.Location, &p.Bio, &p.Social, &p.Points, &p.CreatedAt)
	return p, err
}

func (s *Store) GetParticipant(ctx context.Context, id int64) (storage.Participant, error) {
	p, err := scanParticipant(s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Participant{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *Store) UpsertParticipant(ctx context.Context, p storage.Participant) error {
	return upsertParticipant(ctx, s.pool, p)
}

func upsertParticipant(ctx context.Context, q querier, p storage.Participant) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("participant name is required")
	}
	_, err := q.Exec(ctx, `
        INSERT INTO participants (id, name, handle, location, bio, social, points)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            handle = EXCLUDED.handle,
            location = EXCLUDED.location,
            bio = EXCLUDED.bio,
            social = EXCLUDED.social`,
		p.ID, p.Name, p.Handle, p.Location, p.Bio, p.Social, p.Points,
	)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

func insertParticipant(ctx context.Context, q querier, p storage.Participant) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("participant name is required")
	}
	_, err := q.Exec(ctx, `
        INSERT INTO participants (id, name, handle, location, bio, social, points)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Handle, p.Location, p.Bio, p.Social, p.Points,
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("participant %d: %w", p.ID, storage.ErrConflict)
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, filter storage.ParticipantFilter) ([]storage.Participant, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+participantColumns+` FROM participants
        WHERE ($1::text = '' OR location = $1) AND ($2::bigint = 0 OR id <> $2)
        ORDER BY name, id`,
		filter.Location, filter.ExcludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []storage.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) IncrementPoints(ctx context.Context, participantID int64, delta int) error {
	return incrementPoints(ctx, s.pool, participantID, delta)
}

func incrementPoints(ctx context.Context, q querier, participantID int64, delta int) error {
	tag, err := q.Exec(ctx, `UPDATE participants SET points = points + $1 WHERE id = $2`, delta, participantID)
	if err != nil {
		return fmt.Errorf("increment points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const listingColumns = `id::text, owner_id, direction, title, description, category, location, availability, status, created_at`

func scanListing(row pgx.Row) (storage.Listing, error) {
	var (
		l                 storage.Listing
		direction, status string
	)
	err := row.Scan(&l.ID, &l.OwnerID, &direction, &l.Title, &l.Description, &l.Category,
		&l.Location, &l.Availability, &status, &l.CreatedAt)
	l.Direction = storage.Direction(direction)
	l.Status = storage.ListingStatus(status)
	return l, err
}

func (s *Store) CreateListing(ctx context.Context, l storage.Listing) (string, error) {
	if strings.TrimSpace(l.Title) == "" {
		return "", fmt.Errorf("listing title is required")
	}
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
        INSERT INTO listings (id, owner_id, direction, title, description, category, location, availability, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')`,
		id, l.OwnerID, string(l.Direction), l.Title, l.Description, l.Category, l.Location, l.Availability,
	)
	if err != nil {
		return "", fmt.Errorf("create listing: %w", err)
	}
	return id, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (storage.Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return storage.Listing{}, storage.ErrNotFound
	}
	l, err := scanListing(s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Listing{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *Store) ListListings(ctx context.Context, filter storage.ListingFilter) ([]storage.Listing, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+listingColumns+` FROM listings
        WHERE ($1::bigint = 0 OR owner_id = $1)
          AND ($2::bigint = 0 OR owner_id <> $2)
          AND ($3::text = '' OR status = $3)
          AND ($4::text = '' OR location = $4)
          AND ($5::text = '' OR category = $5)
        ORDER BY created_at DESC, id`,
		filter.OwnerID, filter.ExcludeOwnerID, string(filter.Status), filter.Location, filter.Category,
	)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []storage.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) UpdateListingStatus(ctx context.Context, id string, status storage.ListingStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return storage.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = 'pending'`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update listing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetListing(ctx, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

const dealColumns = `id::text, proposer_id, receiver_id, status, created_at, updated_at`

func scanDeal(row pgx.Row) (storage.Deal, error) {
	var (
		d      storage.Deal
		status string
	)
	err := row.Scan(&d.ID, &d.ProposerID, &d.ReceiverID, &status, &d.CreatedAt, &d.UpdatedAt)
	d.Status = storage.DealStatus(status)
	return d, err
}

func (s *Store) CreateDeal(ctx context.Context, proposerID, receiverID int64) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, proposer_id, receiver_id, status) VALUES ($1, $2, $3, 'pending')`,
		id, proposerID, receiverID,
	)
	if err != nil {
		if isConstraint(err) {
			return "", fmt.Errorf("create deal: %w", storage.ErrConflict)
		}
		return "", fmt.Errorf("create deal: %w", err)
	}
	return id, nil
}

func (s *Store) GetDeal(ctx context.Context, id string) (storage.Deal, error) {
	return getDeal(ctx, s.pool, id)
}

func getDeal(ctx context.Context, q querier, id string) (storage.Deal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return storage.Deal{}, storage.ErrNotFound
	}
	d, err := scanDeal(q.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Deal{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Deal{}, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

func (s *Store) ListDeals(ctx context.Context, filter storage.DealFilter) ([]storage.Deal, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+dealColumns+` FROM deals
        WHERE proposer_id = $1 OR receiver_id = $1
        ORDER BY created_at DESC, id`,
		filter.ParticipantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var out []storage.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDealStatus(ctx context.Context, id string, from, to storage.DealStatus) error {
	return updateDealStatus(ctx, s.pool, id, from, to)
}

func updateDealStatus(ctx context.Context, q querier, id string, from, to storage.DealStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return storage.ErrNotFound
	}
	tag, err := q.Exec(ctx,
		`UPDATE deals SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update deal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := getDeal(ctx, q, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

// CompleteDeal moves accepted to completed and credits the proposer in one
// transaction.
func (s *Store) CompleteDeal(ctx context.Context, id string) (storage.Deal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Deal{}, fmt.Errorf("begin complete deal: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateDealStatus(ctx, tx, id, storage.DealAccepted, storage.DealCompleted); err != nil {
		return storage.Deal{}, err
	}
	d, err := getDeal(ctx, tx, id)
	if err != nil {
		return storage.Deal{}, err
	}
	if err := incrementPoints(ctx, tx, d.ProposerID, 1); err != nil {
		return storage.Deal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Deal{}, fmt.Errorf("commit complete deal: %w", err)
	}
	return d, nil
}

func (s *Store) CreateToken(ctx context.Context) (string, error) {
	token := storage.NewToken()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO invite_tokens (token_hash) VALUES ($1)`, storage.HashToken(token),
	); err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	return token, nil
}

func (s *Store) TokenAvailable(ctx context.Context, token string) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx,
		`SELECT used FROM invite_tokens WHERE token_hash = $1`, storage.HashToken(token),
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return !used, nil
}

func (s *Store) RedeemToken(ctx context.Context, token string) (bool, error) {
	return redeemToken(ctx, s.pool, token)
}

func redeemToken(ctx context.Context, q querier, token string) (bool, error) {
	tag, err := q.Exec(ctx,
		`UPDATE invite_tokens SET used = TRUE, used_at = NOW() WHERE token_hash = $1 AND used = FALSE`,
		storage.HashToken(token),
	)
	if err != nil {
		return false, fmt.Errorf("redeem token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RecordQuestionnaireAnswer(ctx context.Context, participantID int64, payload []byte) error {
	return recordAnswer(ctx, s.pool, participantID, payload)
}

func recordAnswer(ctx context.Context, q querier, participantID int64, payload []byte) error {
	if _, err := q.Exec(ctx,
		`INSERT INTO questionnaire_answers (participant_id, payload) VALUES ($1, $2::jsonb)`,
		participantID, string(payload),
	); err != nil {
		return fmt.Errorf("record questionnaire answer: %w", err)
	}
	return nil
}

// Register redeems the token, creates the participant and records answers in
// one transaction. An existing participant is ErrConflict.
func (s *Store) Register(ctx context.Context, r storage.Registration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback(ctx)

	if r.Token != "" {
		ok, err := redeemToken(ctx, tx, r.Token)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrTokenUsed
		}
	}
	if err := insertParticipant(ctx, tx, r.Participant); err != nil {
		return err
	}
	if err := recordAnswer(ctx, tx, r.Participant.ID, r.Answers); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit register: %w", err)
	}
	return nil
}
