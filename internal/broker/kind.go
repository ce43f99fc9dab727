package broker

import "fmt"

// Kind identifies which of a tenant's external databases a client targets.
type Kind string

const (
	// KindPrimary is the tenant's main operational database
	KindPrimary Kind = "primary"
	// KindSecondary is the tenant's fiscal-documents database, gated behind a
	// per-tenant feature flag
	KindSecondary Kind = "secondary"
)

// Kinds lists every database kind the broker manages.
func Kinds() []Kind {
	return []Kind{KindPrimary, KindSecondary}
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPrimary:
		return KindPrimary, nil
	case KindSecondary:
		return KindSecondary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Valid reports whether the kind is one the broker manages.
func (k Kind) Valid() bool {
	return k == KindPrimary || k == KindSecondary
}
