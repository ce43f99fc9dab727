// Package notifier propagates credential rotations between broker processes
// over Redis pub/sub, so a pool opened with rotated credentials in one
// process is also dropped everywhere else.
package notifier

import (
	"context"

	"github.com/gestiohq/gestio/pkg/database"
	"github.com/gestiohq/gestio/pkg/logger"
)

// Channel carries tenant IDs whose credentials were rotated
const Channel = "gestio:credentials:rotated"

// TenantInvalidator drops cached clients for a tenant without re-publishing.
type TenantInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string)
}

// Notifier publishes and consumes rotation broadcasts.
type Notifier struct {
	rdb    *database.Redis
	logger *logger.Logger
}

// New creates a new rotation notifier
func New(rdb *database.Redis, logger *logger.Logger) *Notifier {
	return &Notifier{
		rdb:    rdb,
		logger: logger,
	}
}

// PublishRotation broadcasts that a tenant's credentials were rotated.
func (n *Notifier) PublishRotation(ctx context.Context, tenantID string) error {
	return n.rdb.Client().Publish(ctx, Channel, tenantID).Err()
}

// Listen consumes rotation broadcasts until the context is cancelled,
// invalidating the named tenant on each message. Messages this process
// published itself arrive here too; invalidating an already-closed tenant is
// a no-op.
func (n *Notifier) Listen(ctx context.Context, invalidator TenantInvalidator) error {
	sub := n.rdb.Client().Subscribe(ctx, Channel)
	defer sub.Close()

	// Confirm the subscription before consuming so callers can rely on no
	// lost broadcasts once Listen returns control
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.logger.Infof("Credential rotation broadcast received for tenant %s", msg.Payload)
			invalidator.InvalidateTenant(ctx, msg.Payload)
		}
	}
}
