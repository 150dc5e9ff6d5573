package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"devportal/internal/registry/models"
	id "devportal/pkg/domain"
)

// PostgresStore persists applications in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE applications (
//	    id                 UUID PRIMARY KEY,
//	    owner_id           UUID NOT NULL,
//	    name               TEXT NOT NULL,
//	    client_id          TEXT NOT NULL UNIQUE,
//	    client_secret_hash TEXT NOT NULL,
//	    redirect_uri       TEXT NOT NULL,
//	    roles              TEXT[] NOT NULL,
//	    status             TEXT NOT NULL,
//	    created_at         TIMESTAMPTZ NOT NULL,
//	    updated_at         TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed application store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const appColumns = `id, owner_id, name, client_id, client_secret_hash, redirect_uri, roles, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO applications (` + appColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(app.ID),
		uuid.UUID(app.OwnerID),
		app.Name,
		app.ClientID,
		app.ClientSecretHash,
		app.RedirectURI,
		pq.Array(rolesToStrings(app.Roles)),
		string(app.Status),
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("clientId already registered: %w", ErrConflict)
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, app *models.Application) error {
	// client_id and client_secret_hash are immutable by omission.
	query := `
		UPDATE applications
		SET name = $2, redirect_uri = $3, roles = $4, status = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(app.ID),
		app.Name,
		app.RedirectURI,
		pq.Array(rolesToStrings(app.Roles)),
		string(app.Status),
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("application not found: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, appID id.ApplicationID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, uuid.UUID(appID))
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete application rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("application not found: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + appColumns + ` FROM applications WHERE id = $1`
	return scanApplication(s.db.QueryRowContext(ctx, query, uuid.UUID(appID)))
}

func (s *PostgresStore) FindByClientID(ctx context.Context, clientID string) (*models.Application, error) {
	query := `SELECT ` + appColumns + ` FROM applications WHERE client_id = $1`
	return scanApplication(s.db.QueryRowContext(ctx, query, clientID))
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.UserID, offset, limit int) ([]*models.Application, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE owner_id = $1`, uuid.UUID(ownerID),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	query := `
		SELECT ` + appColumns + `
		FROM applications
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3
	`
	apps, err := s.queryApplications(ctx, query, uuid.UUID(ownerID), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

func (s *PostgresStore) ListAll(ctx context.Context, offset, limit int) ([]*models.Application, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	query := `
		SELECT ` + appColumns + `
		FROM applications
		ORDER BY created_at DESC, id
		OFFSET $1 LIMIT $2
	`
	apps, err := s.queryApplications(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

func (s *PostgresStore) StatsByOwner(ctx context.Context, ownerID id.UserID) (models.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM applications
		WHERE owner_id = $1
	`
	var stats models.Stats
	if err := s.db.QueryRowContext(ctx, query, uuid.UUID(ownerID)).Scan(&stats.Total, &stats.Active, &stats.Pending); err != nil {
		return models.Stats{}, fmt.Errorf("application stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) queryApplications(ctx context.Context, query string, args ...any) ([]*models.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

type applicationRow interface {
	Scan(dest ...any) error
}

func scanApplication(row applicationRow) (*models.Application, error) {
	var (
		app     models.Application
		appID   uuid.UUID
		ownerID uuid.UUID
		roles   pq.StringArray
		status  string
	)
	err := row.Scan(&appID, &ownerID, &app.Name, &app.ClientID, &app.ClientSecretHash,
		&app.RedirectURI, &roles, &status, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	app.ID = id.ApplicationID(appID)
	app.OwnerID = id.UserID(ownerID)
	app.Status = models.ApplicationStatus(status)
	app.Roles = make([]id.Role, len(roles))
	for i, r := range roles {
		app.Roles[i] = id.Role(r)
	}
	return &app, nil
}

func rolesToStrings(roles []id.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
