package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/gestiohq/gestio/internal/controlplane"
	"github.com/gestiohq/gestio/pkg/encryption"
	"github.com/gestiohq/gestio/pkg/logger"
)

// DefaultPort is used when a tenant record has no explicit port.
const DefaultPort = 5432

// FiscalSuffix is appended to the tenant's database name for the secondary
// fiscal-documents database. Both databases live on the same server and share
// one set of credentials.
const FiscalSuffix = "_fiscal"

// Credentials is the decrypted, ephemeral bundle needed to open a connection
// to a tenant database. It is built fresh on every resolution, never cached,
// never persisted and never logged.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// Resolver turns a tenant identity into validated, decrypted credentials.
// It performs no caching and is the only place plaintext passwords are
// materialized.
type Resolver struct {
	store  controlplane.Store
	cipher *encryption.Cipher
	logger *logger.Logger
}

// NewResolver creates a new credential resolver
func NewResolver(store controlplane.Store, cipher *encryption.Cipher, logger *logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cipher: cipher,
		logger: logger,
	}
}

// Resolve loads, validates and decrypts a tenant's connection credentials
// for the given database kind.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, kind Kind) (Credentials, error) {
	record, err := r.load(ctx, tenantID, kind)
	if err != nil {
		return Credentials{}, err
	}

	password, err := r.cipher.Decrypt(*record.PasswordEncrypted)
	if err != nil {
		r.logger.Errorf("Failed to decrypt database password for tenant %s: %v", tenantID, err)
		return Credentials{}, err
	}

	port := DefaultPort
	if record.Port != nil && *record.Port != 0 {
		port = int(*record.Port)
	}

	return Credentials{
		Host:     *record.Host,
		Port:     port,
		Username: *record.Username,
		Password: password,
		Database: databaseName(record, tenantID, kind),
	}, nil
}

// Check reports whether the tenant has usable credentials for the kind
// without decrypting or connecting. A missing tenant, missing attributes or
// a disabled feature all report false; only control-plane read failures
// surface as errors.
func (r *Resolver) Check(ctx context.Context, tenantID string, kind Kind) (bool, error) {
	_, err := r.load(ctx, tenantID, kind)
	if err != nil {
		if IsNotConfigured(err) || IsFeatureDisabled(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// load performs resolution steps 1-3: record lookup, feature gate and
// presence validation. Decryption is left to Resolve.
func (r *Resolver) load(ctx context.Context, tenantID string, kind Kind) (*controlplane.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	record, err := r.store.ConnectionRecord(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if kind == KindSecondary && !record.FiscalDocsEnabled {
		return nil, fmt.Errorf("%w: fiscal documents database for tenant %s", ErrFeatureNotEnabled, tenantID)
	}

	// A partially configured record counts as not configured
	if isEmpty(record.Host) || isEmpty(record.Username) || isEmpty(record.PasswordEncrypted) {
		return nil, fmt.Errorf("%w: tenant %s", ErrCredentialsNotConfigured, tenantID)
	}

	return record, nil
}

// databaseName maps a kind to the database name on the tenant's server.
func databaseName(record *controlplane.Record, tenantID string, kind Kind) string {
	name := "gestio_" + tenantID
	if record.DatabaseName != nil && *record.DatabaseName != "" {
		name = *record.DatabaseName
	}
	if kind == KindSecondary {
		name += FiscalSuffix
	}
	return name
}

func isEmpty(s *string) bool {
	return s == nil || *s == ""
}

// IsFeatureDisabled checks if an error means the kind is feature-gated off.
func IsFeatureDisabled(err error) bool {
	return errors.Is(err, ErrFeatureNotEnabled)
}
