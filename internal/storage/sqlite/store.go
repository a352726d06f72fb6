// Package sqlite provides a SQLite-backed storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/storage/sqlite/migrations"
)

// Store persists community state in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ storage.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps writers ordered and makes BEGIN IMMEDIATE cheap.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isConstraint(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3lib.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3lib.SQLITE_CONSTRAINT_CHECK,
			sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint failed")
}

type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const participantColumns = `id, name, handle, location, bio, social, points, created_at`

func scanParticipant(row scanner) (storage.Participant, error) {
	var (
		p       storage.Participant
		created int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Handle, &p.Location, &p.Bio, &p.Social, &p.Points, &created); err != nil {
		return storage.Participant{}, err
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// GetParticipant returns one participant by id.
func (s *Store) GetParticipant(ctx context.Context, id int64) (storage.Participant, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Participant{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// UpsertParticipant inserts or updates the profile fields. Points are left
// untouched on update.
func (s *Store) UpsertParticipant(ctx context.Context, p storage.Participant) error {
	return upsertParticipant(ctx, s.sqlDB, p, s.now())
}

func upsertParticipant(ctx context.Context, q queryer, p storage.Participant, now time.Time) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("participant name is required")
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO participants (id, name, handle, location, bio, social, points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   handle = excluded.handle,
		   location = excluded.location,
		   bio = excluded.bio,
		   social = excluded.social`,
		p.ID, p.Name, p.Handle, p.Location, p.Bio, p.Social, p.Points, toMillis(created),
	)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// insertParticipant creates a new profile. An existing id is ErrConflict.
func insertParticipant(ctx context.Context, q queryer, p storage.Participant, now time.Time) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("participant name is required")
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO participants (id, name, handle, location, bio, social, points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Handle, p.Location, p.Bio, p.Social, p.Points, toMillis(created),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("participant %d: %w", p.ID, storage.ErrConflict)
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// ListParticipants returns participants matching filter ordered by name.
func (s *Store) ListParticipants(ctx context.Context, filter storage.ParticipantFilter) ([]storage.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE 1 = 1`
	var args []any
	if filter.Location != "" {
		query += ` AND location = ?`
		args = append(args, filter.Location)
	}
	if filter.ExcludeID != 0 {
		query += ` AND id <> ?`
		args = append(args, filter.ExcludeID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
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

// IncrementPoints adds delta to a participant's balance.
func (s *Store) IncrementPoints(ctx context.Context, participantID int64, delta int) error {
	return incrementPoints(ctx, s.sqlDB, participantID, delta)
}

func incrementPoints(ctx context.Context, q queryer, participantID int64, delta int) error {
	res, err := q.ExecContext(ctx, `UPDATE participants SET points = points + ? WHERE id = ?`, delta, participantID)
	if err != nil {
		return fmt.Errorf("increment points: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const listingColumns = `id, owner_id, direction, title, description, category, location, availability, status, created_at`

func scanListing(row scanner) (storage.Listing, error) {
	var (
		l       storage.Listing
		created int64
	)
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Direction, &l.Title, &l.Description, &l.Category,
		&l.Location, &l.Availability, &l.Status, &created); err != nil {
		return storage.Listing{}, err
	}
	l.CreatedAt = fromMillis(created)
	return l, nil
}

// CreateListing inserts a pending listing and returns its id.
func (s *Store) CreateListing(ctx context.Context, l storage.Listing) (string, error) {
	if strings.TrimSpace(l.Title) == "" {
		return "", fmt.Errorf("listing title is required")
	}
	id := uuid.NewString()
	now := toMillis(s.now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO listings (id, owner_id, direction, title, description, category, location, availability, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, l.OwnerID, string(l.Direction), l.Title, l.Description, l.Category, l.Location, l.Availability,
		string(storage.ListingPending), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("create listing: %w", err)
	}
	return id, nil
}

// GetListing returns one listing by id.
func (s *Store) GetListing(ctx context.Context, id string) (storage.Listing, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Listing{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

// ListListings returns listings matching filter, newest first.
func (s *Store) ListListings(ctx context.Context, filter storage.ListingFilter) ([]storage.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1 = 1`
	var args []any
	if filter.OwnerID != 0 {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.ExcludeOwnerID != 0 {
		query += ` AND owner_id <> ?`
		args = append(args, filter.ExcludeOwnerID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Location != "" {
		query += ` AND location = ?`
		args = append(args, filter.Location)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
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

// UpdateListingStatus moves a pending listing to status.
func (s *Store) UpdateListingStatus(ctx context.Context, id string, status storage.ListingStatus) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE listings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), toMillis(s.now()), id, string(storage.ListingPending),
	)
	if err != nil {
		return fmt.Errorf("update listing status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetListing(ctx, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

const dealColumns = `id, proposer_id, receiver_id, status, created_at, updated_at`

func scanDeal(row scanner) (storage.Deal, error) {
	var (
		d                storage.Deal
		created, updated int64
	)
	if err := row.Scan(&d.ID, &d.ProposerID, &d.ReceiverID, &d.Status, &created, &updated); err != nil {
		return storage.Deal{}, err
	}
	d.CreatedAt = fromMillis(created)
	d.UpdatedAt = fromMillis(updated)
	return d, nil
}

// CreateDeal inserts a pending deal and returns its id.
func (s *Store) CreateDeal(ctx context.Context, proposerID, receiverID int64) (string, error) {
	id := uuid.NewString()
	now := toMillis(s.now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO deals (id, proposer_id, receiver_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, proposerID, receiverID, string(storage.DealPending), now, now,
	)
	if err != nil {
		if isConstraint(err) {
			return "", fmt.Errorf("create deal: %w", storage.ErrConflict)
		}
		return "", fmt.Errorf("create deal: %w", err)
	}
	return id, nil
}

// GetDeal returns one deal by id.
func (s *Store) GetDeal(ctx context.Context, id string) (storage.Deal, error) {
	return getDeal(ctx, s.sqlDB, id)
}

func getDeal(ctx context.Context, q queryer, id string) (storage.Deal, error) {
	row := q.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
	d, err := scanDeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Deal{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Deal{}, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

// ListDeals returns the deals a participant is part of, newest first.
func (s *Store) ListDeals(ctx context.Context, filter storage.DealFilter) ([]storage.Deal, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals
		  WHERE proposer_id = ? OR receiver_id = ?
		  ORDER BY created_at DESC, id`,
		filter.ParticipantID, filter.ParticipantID,
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

// UpdateDealStatus moves a deal from one status to another.
func (s *Store) UpdateDealStatus(ctx context.Context, id string, from, to storage.DealStatus) error {
	return updateDealStatus(ctx, s.sqlDB, id, from, to, s.now())
}

func updateDealStatus(ctx context.Context, q queryer, id string, from, to storage.DealStatus, now time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE deals SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(now), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update deal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := getDeal(ctx, q, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

// CompleteDeal marks an accepted deal completed and credits the proposer.
func (s *Store) CompleteDeal(ctx context.Context, id string) (storage.Deal, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Deal{}, fmt.Errorf("begin complete deal: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if err := updateDealStatus(ctx, tx, id, storage.DealAccepted, storage.DealCompleted, now); err != nil {
		return storage.Deal{}, err
	}
	d, err := getDeal(ctx, tx, id)
	if err != nil {
		return storage.Deal{}, err
	}
	if err := incrementPoints(ctx, tx, d.ProposerID, 1); err != nil {
		return storage.Deal{}, err
	}
	if err := tx.Commit(); err != nil {
		return storage.Deal{}, fmt.Errorf("commit complete deal: %w", err)
	}
	return d, nil
}

// CreateToken stores a new invite token and returns its plaintext.
func (s *Store) CreateToken(ctx context.Context) (string, error) {
	token := storage.NewToken()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO invite_tokens (token_hash, used, created_at) VALUES (?, 0, ?)`,
		storage.HashToken(token), toMillis(s.now()),
	)
	if err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	return token, nil
}

// TokenAvailable reports whether token exists and is unused.
func (s *Store) TokenAvailable(ctx context.Context, token string) (bool, error) {
	var used bool
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT used FROM invite_tokens WHERE token_hash = ?`, storage.HashToken(token),
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return !used, nil
}

// RedeemToken marks token used. It reports false when the token is unknown or
// already used.
func (s *Store) RedeemToken(ctx context.Context, token string) (bool, error) {
	return redeemToken(ctx, s.sqlDB, token, s.now())
}

func redeemToken(ctx context.Context, q queryer, token string, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE invite_tokens SET used = 1, used_at = ? WHERE token_hash = ? AND used = 0`,
		toMillis(now), storage.HashToken(token),
	)
	if err != nil {
		return false, fmt.Errorf("redeem token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("redeem token: %w", err)
	}
	return n == 1, nil
}

// RecordQuestionnaireAnswer stores a serialized answer mapping.
func (s *Store) RecordQuestionnaireAnswer(ctx context.Context, participantID int64, payload []byte) error {
	return recordAnswer(ctx, s.sqlDB, participantID, payload, s.now())
}

func recordAnswer(ctx context.Context, q queryer, participantID int64, payload []byte, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO questionnaire_answers (participant_id, payload, created_at) VALUES (?, ?, ?)`,
		participantID, string(payload), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("record questionnaire answer: %w", err)
	}
	return nil
}

// Register redeems the token, creates the participant and records the answers
// in one transaction. An existing participant is ErrConflict.
func (s *Store) Register(ctx context.Context, r storage.Registration) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if r.Token != "" {
		ok, err := redeemToken(ctx, tx, r.Token, now)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrTokenUsed
		}
	}
	if err := insertParticipant(ctx, tx, r.Participant, now); err != nil {
		return err
	}
	if err := recordAnswer(ctx, tx, r.Participant.ID, r.Answers, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit register: %w", err)
	}
	return nil
}

// CountAnswers returns how many questionnaire records exist for a participant.
func (s *Store) CountAnswers(ctx context.Context, participantID int64) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questionnaire_answers WHERE participant_id = ?`, participantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}
