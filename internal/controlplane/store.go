// Package controlplane provides read-only access to the platform's own
// database. The broker only ever reads a tenant's stored connection
// attributes; tenant business data lives in the tenant's external database
// and is never touched here.
package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gestiohq/gestio/pkg/database"
)

// ErrTenantNotFound is returned when no tenant row exists for the given ID.
var ErrTenantNotFound = errors.New("tenant not found")

// Record holds a tenant's stored connection attributes. Nullable columns are
// pointers; presence validation belongs to the credential resolver, not here.
type Record struct {
	TenantID          string
	Host              *string
	Port              *int32
	Username          *string
	PasswordEncrypted *string
	DatabaseName      *string
	FiscalDocsEnabled bool
}

// Store is the narrow read contract the broker consumes.
type Store interface {
	ConnectionRecord(ctx context.Context, tenantID string) (*Record, error)
}

// PGStore reads tenant connection records from the control-plane database.
type PGStore struct {
	db *database.PostgreSQL
}

// NewPGStore creates a new control-plane store
func NewPGStore(db *database.PostgreSQL) *PGStore {
	return &PGStore{db: db}
}

// ConnectionRecord loads the connection attributes for a tenant. Only the
// credential columns are selected, never the tenant's business data.
func (s *PGStore) ConnectionRecord(ctx context.Context, tenantID string) (*Record, error) {
	query := `
		SELECT tenant_id, db_host, db_port, db_username, db_password_encrypted, db_name, fiscal_docs_enabled
		FROM tenants
		WHERE tenant_id = $1
	`

	var record Record
	err := s.db.Pool().QueryRow(ctx, query, tenantID).Scan(
		&record.TenantID,
		&record.Host,
		&record.Port,
		&record.Username,
		&record.PasswordEncrypted,
		&record.DatabaseName,
		&record.FiscalDocsEnabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		}
		return nil, fmt.Errorf("failed to load tenant connection record: %w", err)
	}

	return &record, nil
}
