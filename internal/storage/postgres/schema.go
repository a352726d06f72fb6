package postgres

import (
	"context"
	"fmt"
)

// ensureSchema creates the tables the store needs when they are missing.
func (s *Store) ensureSchema(ctx context.Context) error {
	for _, step := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"participants", s.ensureParticipantsTable},
		{"listings", s.ensureListingsTable},
		{"deals", s.ensureDealsTable},
		{"invite_tokens", s.ensureInviteTokensTable},
		{"questionnaire_answers", s.ensureAnswersTable},
		{"indexes", s.ensureIndexes},
	} {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", step.name, err)
		}
	}
	return nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = 'public' AND table_name = $1
        )`, table).Scan(&exists)
	return exists, err
}

func (s *Store) ensureTable(ctx context.Context, table, ddl string) error {
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return err
	}
	s.log.Info("table ensured: " + table)
	return nil
}

func (s *Store) ensureParticipantsTable(ctx context.Context) error {
	return s.ensureTable(ctx, "participants", `
        CREATE TABLE IF NOT EXISTS participants (
            id BIGINT PRIMARY KEY,
            name TEXT NOT NULL,
            handle TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            bio TEXT NOT NULL DEFAULT '',
            social TEXT NOT NULL DEFAULT '',
            points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_participants_location ON participants(location);
    `)
}

func (s *Store) ensureListingsTable(ctx context.Context) error {
	return s.ensureTable(ctx, "listings", `
        CREATE TABLE IF NOT EXISTS listings (
            id UUID PRIMARY KEY,
            owner_id BIGINT NOT NULL REFERENCES participants(id),
            direction TEXT NOT NULL CHECK (direction IN ('offer','request')),
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            availability TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','approved','rejected')),
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
        CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);
    `)
}

func (s *Store) ensureDealsTable(ctx context.Context) error {
	return s.ensureTable(ctx, "deals", `
        CREATE TABLE IF NOT EXISTS deals (
            id UUID PRIMARY KEY,
            proposer_id BIGINT NOT NULL REFERENCES participants(id),
            receiver_id BIGINT NOT NULL REFERENCES participants(id),
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','accepted','declined','completed')),
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK (proposer_id <> receiver_id)
        );
        CREATE INDEX IF NOT EXISTS idx_deals_proposer ON deals(proposer_id);
        CREATE INDEX IF NOT EXISTS idx_deals_receiver ON deals(receiver_id);
    `)
}

func (s *Store) ensureInviteTokensTable(ctx context.Context) error {
	return s.ensureTable(ctx, "invite_tokens", `
        CREATE TABLE IF NOT EXISTS invite_tokens (
            token_hash TEXT PRIMARY KEY,
            used BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            used_at TIMESTAMP WITH TIME ZONE NULL
        );
    `)
}

func (s *Store) ensureAnswersTable(ctx context.Context) error {
	return s.ensureTable(ctx, "questionnaire_answers", `
        CREATE TABLE IF NOT EXISTS questionnaire_answers (
            id BIGSERIAL PRIMARY KEY,
            participant_id BIGINT NOT NULL REFERENCES participants(id),
            payload JSONB NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_questionnaire_answers_participant ON questionnaire_answers(participant_id);
    `)
}

// ensureIndexes adds indexes introduced after the tables, so existing
// databases pick them up too.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_listings_browse ON listings(status, location, category)`)
	return err
}
