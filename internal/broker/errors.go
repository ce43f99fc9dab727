package broker

import (
	"errors"
	"fmt"

	"github.com/gestiohq/gestio/internal/controlplane"
	"github.com/gestiohq/gestio/pkg/encryption"
)

// Standard broker errors. Resolution failures carry a specific kind so the
// caller can distinguish "not configured, prompt to configure" from
// "configured but failing".
var (
	// ErrTenantNotFound is returned when no tenant row exists for the ID
	ErrTenantNotFound = controlplane.ErrTenantNotFound

	// ErrCredentialsNotConfigured is returned when the tenant row exists but
	// its connection attributes are missing or incomplete
	ErrCredentialsNotConfigured = errors.New("tenant database credentials not configured")

	// ErrFeatureNotEnabled is returned when the requested database kind is
	// gated behind a feature flag that is off for the tenant
	ErrFeatureNotEnabled = errors.New("database feature not enabled for tenant")

	// ErrDecryptionFailed is returned when the stored password cannot be
	// decrypted under the process cipher key
	ErrDecryptionFailed = encryption.ErrDecryptionFailed

	// ErrConnectionFailed is returned when the tenant database cannot be
	// reached or refuses the credentials
	ErrConnectionFailed = errors.New("tenant database connection failed")

	// ErrPoolExhausted is returned when the per-tenant pool bound is reached
	// and no connection frees up within the acquire timeout
	ErrPoolExhausted = errors.New("tenant connection pool exhausted")

	// ErrUnknownKind is returned for a database kind the broker does not know
	ErrUnknownKind = errors.New("unknown database kind")
)

// ConnectionError wraps a connection failure with tenant context.
type ConnectionError struct {
	TenantID string
	Kind     Kind
	Host     string
	Port     int
	Cause    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("failed to connect to %s database for tenant %s at %s:%d: %v",
			e.Kind, e.TenantID, e.Host, e.Port, e.Cause)
	}
	return fmt.Sprintf("failed to connect to %s database for tenant %s: %v", e.Kind, e.TenantID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrConnectionFailed.
func (e *ConnectionError) Is(target error) bool {
	if errors.Is(target, ErrConnectionFailed) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(tenantID string, kind Kind, host string, port int, cause error) *ConnectionError {
	return &ConnectionError{
		TenantID: tenantID,
		Kind:     kind,
		Host:     host,
		Port:     port,
		Cause:    cause,
	}
}

// IsNotConfigured checks if an error means the tenant has no usable
// credentials (missing row or incomplete attributes).
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrCredentialsNotConfigured) || errors.Is(err, ErrTenantNotFound)
}

// IsConnectionError checks if an error is a connection failure.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}
