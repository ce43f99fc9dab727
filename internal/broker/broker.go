// Package broker resolves, caches and retires connections to tenant-owned
// external databases. It is the only component that handles tenant database
// credentials; the rest of the platform obtains client handles through the
// Broker facade and never manages connections itself.
package broker

import (
	"context"

	"github.com/gestiohq/gestio/internal/controlplane"
	"github.com/gestiohq/gestio/pkg/encryption"
	"github.com/gestiohq/gestio/pkg/health"
	"github.com/gestiohq/gestio/pkg/logger"
)

// RotationPublisher broadcasts a credential rotation to sibling processes so
// they drop their cached pools too. A nil publisher disables broadcasting.
type RotationPublisher interface {
	PublishRotation(ctx context.Context, tenantID string) error
}

// Broker is the single entry point external collaborators use.
type Broker struct {
	resolver  *Resolver
	registry  *Registry
	publisher RotationPublisher
	logger    *logger.Logger
}

// New assembles a broker from its collaborators.
func New(store controlplane.Store, cipher *encryption.Cipher, cfg FactoryConfig, log *logger.Logger, publisher RotationPublisher) *Broker {
	resolver := NewResolver(store, cipher, log)
	factory := NewFactory(cfg, log)

	registry := NewRegistry(func(ctx context.Context, tenantID string, kind Kind) (*Client, error) {
		// Credentials are materialized here and nowhere else; they go out of
		// scope as soon as the pool is established
		creds, err := resolver.Resolve(ctx, tenantID, kind)
		if err != nil {
			return nil, err
		}
		return factory.Build(ctx, creds, tenantID, kind)
	}, log)

	return &Broker{
		resolver:  resolver,
		registry:  registry,
		publisher: publisher,
		logger:    log,
	}
}

// ResolveClient returns a live client for the tenant's database of the given
// kind, reusing the cached one when present.
func (b *Broker) ResolveClient(ctx context.Context, tenantID string, kind Kind) (*Client, error) {
	return b.registry.Get(ctx, tenantID, kind)
}

// HasCredentials reports whether the tenant has usable credentials for the
// kind, without decrypting or connecting. UI guards use it to decide between
// a "configure database" prompt and rendering tenant data. Control-plane
// read failures collapse to false and are logged.
func (b *Broker) HasCredentials(ctx context.Context, tenantID string, kind Kind) bool {
	ok, err := b.resolver.Check(ctx, tenantID, kind)
	if err != nil {
		b.logger.Errorf("Credential check failed for tenant %s (%s): %v", tenantID, kind, err)
		return false
	}
	return ok
}

// CloseAll retires every cached client for the tenant and broadcasts the
// rotation to sibling processes. Invoked by tenant-lifecycle operations when
// a tenant is deleted or its credentials change.
func (b *Broker) CloseAll(ctx context.Context, tenantID string) error {
	b.registry.CloseAll(ctx, tenantID)

	if b.publisher != nil {
		if err := b.publisher.PublishRotation(ctx, tenantID); err != nil {
			b.logger.Errorf("Failed to broadcast credential rotation for tenant %s: %v", tenantID, err)
			return err
		}
	}
	return nil
}

// InvalidateTenant retires the tenant's cached clients without broadcasting.
// The rotation listener calls this when a sibling process rotated the
// credentials, avoiding publish loops.
func (b *Broker) InvalidateTenant(ctx context.Context, tenantID string) {
	b.registry.CloseAll(ctx, tenantID)
}

// Shutdown closes every cached client at process exit.
func (b *Broker) Shutdown(ctx context.Context) {
	b.registry.Shutdown(ctx)
}

// HealthCheck records a ping result for every cached client.
func (b *Broker) HealthCheck(ctx context.Context, checker *health.Checker) {
	b.registry.HealthCheck(ctx, checker)
}

// ActiveClients returns a snapshot of all cached clients, for diagnostics.
func (b *Broker) ActiveClients() []ClientInfo {
	return b.registry.ListActive()
}
