package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "devportal/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL, append-only.
//
// Schema:
//
//	CREATE TABLE audit_events (
//	    id             BIGSERIAL PRIMARY KEY,
//	    timestamp      TIMESTAMPTZ NOT NULL,
//	    action         TEXT NOT NULL,
//	    user_id        TEXT,
//	    actor_id       TEXT,
//	    subject        TEXT,
//	    application_id TEXT,
//	    role           TEXT,
//	    request_id     TEXT
//	);
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (timestamp, action, user_id, actor_id, subject, application_id, role, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp,
		event.Action,
		nullable(event.UserID),
		nullable(event.ActorID),
		nullable(event.Subject),
		nullable(event.ApplicationID),
		nullable(event.Role),
		nullable(event.RequestID),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
