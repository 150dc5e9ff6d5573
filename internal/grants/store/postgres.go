package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"devportal/internal/grants/models"
	id "devportal/pkg/domain"
)

// PostgresRequestStore persists access requests in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE access_requests (
//	    id             UUID PRIMARY KEY,
//	    application_id UUID NOT NULL,
//	    user_id        UUID NOT NULL,
//	    requested_role TEXT NOT NULL,
//	    message        TEXT NOT NULL DEFAULT '',
//	    status         TEXT NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    resolved_at    TIMESTAMPTZ,
//	    resolved_by    UUID
//	);
//	CREATE UNIQUE INDEX access_requests_one_pending
//	    ON access_requests (user_id, application_id) WHERE status = 'pending';
type PostgresRequestStore struct {
	db *sql.DB
}

// NewPostgresRequests constructs a PostgreSQL-backed access request store.
func NewPostgresRequests(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

const requestColumns = `id, application_id, user_id, requested_role, message, status, created_at, resolved_at, resolved_by`

func (s *PostgresRequestStore) Create(ctx context.Context, request *models.AccessRequest) error {
	query := `
		INSERT INTO access_requests (id, application_id, user_id, requested_role, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(request.ID),
		uuid.UUID(request.ApplicationID),
		uuid.UUID(request.UserID),
		string(request.RequestedRole),
		request.Message,
		string(request.Status),
		request.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("pending request already exists: %w", ErrConflict)
		}
		return fmt.Errorf("create access request: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE id = $1`
	return scanRequest(s.db.QueryRowContext(ctx, query, uuid.UUID(requestID)))
}

func (s *PostgresRequestStore) ListPendingByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.AccessRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM access_requests
		WHERE application_id = $1 AND status = 'pending'
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var pending []*models.AccessRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending requests: %w", err)
	}
	return pending, nil
}

// Transition moves a pending request to a terminal status with a single
// compare-and-set statement. Of two racing decisions exactly one matches the
// pending predicate; the other falls through to the status probe and gets
// ErrInvalidState.
func (s *PostgresRequestStore) Transition(
	ctx context.Context,
	requestID id.RequestID,
	to models.RequestStatus,
	actor id.UserID,
	now time.Time,
) (*models.AccessRequest, error) {
	query := `
		UPDATE access_requests
		SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns + `
	`
	request, err := scanRequest(s.db.QueryRowContext(ctx, query,
		uuid.UUID(requestID), string(to), now, uuid.UUID(actor)))
	if err == nil {
		return request, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("transition access request: %w", err)
	}

	var status string
	probeErr := s.db.QueryRowContext(ctx,
		`SELECT status FROM access_requests WHERE id = $1`, uuid.UUID(requestID),
	).Scan(&status)
	if errors.Is(probeErr, sql.ErrNoRows) {
		return nil, fmt.Errorf("access request not found: %w", ErrNotFound)
	}
	if probeErr != nil {
		return nil, fmt.Errorf("probe access request: %w", probeErr)
	}
	return nil, fmt.Errorf("request already %s: %w", status, ErrInvalidState)
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.AccessRequest, error) {
	var (
		request    models.AccessRequest
		requestID  uuid.UUID
		appID      uuid.UUID
		userID     uuid.UUID
		role       string
		status     string
		resolvedAt sql.NullTime
		resolvedBy uuid.NullUUID
	)
	err := row.Scan(&requestID, &appID, &userID, &role, &request.Message,
		&status, &request.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access request not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan access request: %w", err)
	}
	request.ID = id.RequestID(requestID)
	request.ApplicationID = id.ApplicationID(appID)
	request.UserID = id.UserID(userID)
	request.RequestedRole = id.Role(role)
	request.Status = models.RequestStatus(status)
	if resolvedAt.Valid {
		request.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		by := id.UserID(resolvedBy.UUID)
		request.ResolvedBy = &by
	}
	return &request, nil
}

// PostgresGrantStore persists role grants in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE role_grants (
//	    user_id        UUID NOT NULL,
//	    application_id UUID NOT NULL,
//	    role           TEXT NOT NULL,
//	    granted_by     UUID NOT NULL,
//	    granted_at     TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (user_id, application_id)
//	);
type PostgresGrantStore struct {
	db *sql.DB
}

// NewPostgresGrants constructs a PostgreSQL-backed grant store.
func NewPostgresGrants(db *sql.DB) *PostgresGrantStore {
	return &PostgresGrantStore{db: db}
}

func (s *PostgresGrantStore) Upsert(ctx context.Context, grant *models.RoleGrant) error {
	query := `
		INSERT INTO role_grants (user_id, application_id, role, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, application_id)
		DO UPDATE SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(grant.UserID),
		uuid.UUID(grant.ApplicationID),
		string(grant.Role),
		uuid.UUID(grant.GrantedBy),
		grant.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (s *PostgresGrantStore) Delete(ctx context.Context, appID id.ApplicationID, userID id.UserID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM role_grants WHERE application_id = $1 AND user_id = $2`,
		uuid.UUID(appID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete grant rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("grant not found: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresGrantStore) Find(ctx context.Context, appID id.ApplicationID, userID id.UserID) (*models.RoleGrant, error) {
	query := `
		SELECT user_id, application_id, role, granted_by, granted_at
		FROM role_grants
		WHERE application_id = $1 AND user_id = $2
	`
	return scanGrant(s.db.QueryRowContext(ctx, query, uuid.UUID(appID), uuid.UUID(userID)))
}

func (s *PostgresGrantStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.RoleGrant, error) {
	query := `
		SELECT user_id, application_id, role, granted_by, granted_at
		FROM role_grants
		WHERE application_id = $1
		ORDER BY granted_at, user_id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []*models.RoleGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

func scanGrant(row requestRow) (*models.RoleGrant, error) {
	var (
		grant     models.RoleGrant
		userID    uuid.UUID
		appID     uuid.UUID
		grantedBy uuid.UUID
		role      string
	)
	err := row.Scan(&userID, &appID, &role, &grantedBy, &grant.GrantedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("grant not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan grant: %w", err)
	}
	grant.UserID = id.UserID(userID)
	grant.ApplicationID = id.ApplicationID(appID)
	grant.Role = id.Role(role)
	grant.GrantedBy = id.UserID(grantedBy)
	return &grant, nil
}
