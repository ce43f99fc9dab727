package broker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/gestiohq/gestio/pkg/health"
	"github.com/gestiohq/gestio/pkg/logger"
)

// BuildFunc creates a new client for a tenant and kind. The registry calls it
// at most once per key at any time.
type BuildFunc func(ctx context.Context, tenantID string, kind Kind) (*Client, error)

// entry is a cached live client
type entry struct {
	id        string
	client    *Client
	createdAt time.Time
}

// Registry caches live tenant clients keyed by (tenant, kind). Creation is
// single-flight: concurrent first requests for the same key share one
// connection attempt. Entries never expire on their own; they leave the cache
// only through an explicit close or process shutdown, so an absent entry
// always means "not yet created" or "explicitly closed".
type Registry struct {
	build  BuildFunc
	logger *logger.Logger
	group  singleflight.Group

	mu             sync.RWMutex
	entries        map[string]*entry
	inflight       map[string]int
	closeRequested map[string]bool
}

// NewRegistry creates a new connection registry. Instances are
// constructor-injected rather than process-global so tests can run isolated
// registries side by side.
func NewRegistry(build BuildFunc, logger *logger.Logger) *Registry {
	return &Registry{
		build:          build,
		logger:         logger,
		entries:        make(map[string]*entry),
		inflight:       make(map[string]int),
		closeRequested: make(map[string]bool),
	}
}

func registryKey(tenantID string, kind Kind) string {
	return tenantID + "/" + string(kind)
}

// Get returns the cached client for the key, building one on first use.
// A failed build never populates the cache, so the next call is a clean
// retry.
func (r *Registry) Get(ctx context.Context, tenantID string, kind Kind) (*Client, error) {
	key := registryKey(tenantID, kind)

	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return e.client, nil
	}

	r.mu.Lock()
	r.inflight[key]++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inflight[key]--
		if r.inflight[key] <= 0 {
			delete(r.inflight, key)
		}
		r.mu.Unlock()
	}()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// A racing call may have populated the cache before we joined the
		// flight
		r.mu.RLock()
		e, ok := r.entries[key]
		r.mu.RUnlock()
		if ok {
			return e.client, nil
		}

		client, err := r.build(ctx, tenantID, kind)

		r.mu.Lock()
		closeRaced := r.closeRequested[key]
		delete(r.closeRequested, key)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		if closeRaced {
			// A close arrived mid-creation; finish the build, then retire
			// the fresh pool immediately instead of caching a half-owned one
			r.mu.Unlock()
			client.close()
			r.logger.Infof("Closed %s client for tenant %s immediately after creation", kind, tenantID)
			return nil, NewConnectionError(tenantID, kind, "", 0, errors.New("client closed while being established"))
		}
		e = &entry{
			id:        uuid.NewString(),
			client:    client,
			createdAt: time.Now(),
		}
		r.entries[key] = e
		r.mu.Unlock()

		r.logger.Infof("Created %s client %s for tenant %s", kind, e.id, tenantID)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

// Close retires the cached client for the key. Ready clients are removed and
// their pools released asynchronously. A close racing an in-flight creation
// marks the creation so its result is retired the moment it completes.
// Closing an absent key is a no-op.
func (r *Registry) Close(ctx context.Context, tenantID string, kind Kind) {
	key := registryKey(tenantID, kind)

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		delete(r.entries, key)
		r.mu.Unlock()
		e.client.close()
		r.logger.Infof("Closed %s client %s for tenant %s", kind, e.id, tenantID)
		return
	}
	if r.inflight[key] > 0 {
		r.closeRequested[key] = true
	}
	r.mu.Unlock()
}

// CloseAll retires every kind registered for the tenant. Used when a tenant
// is deleted or its credentials are rotated, so stale pools holding the old
// password are never reused.
func (r *Registry) CloseAll(ctx context.Context, tenantID string) {
	for _, kind := range Kinds() {
		r.Close(ctx, tenantID, kind)
	}
}

// Shutdown closes every cached client. Safe to call more than once.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for key, e := range entries {
		e.client.close()
		r.logger.Infof("Closed client %s (%s) during shutdown", e.id, key)
	}
}

// Has reports whether a live client is cached for the key, without I/O.
func (r *Registry) Has(tenantID string, kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[registryKey(tenantID, kind)]
	return ok
}

// ClientInfo describes a cached client for diagnostics.
type ClientInfo struct {
	ID        string
	TenantID  string
	Kind      Kind
	CreatedAt time.Time
}

// ListActive returns a snapshot of all cached clients.
func (r *Registry) ListActive() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, ClientInfo{
			ID:        e.id,
			TenantID:  e.client.TenantID(),
			Kind:      e.client.Kind(),
			CreatedAt: e.createdAt,
		})
	}
	return infos
}

// HealthCheck pings every cached client and records the results on the
// checker. Closed entries are pruned from the checker by key.
func (r *Registry) HealthCheck(ctx context.Context, checker *health.Checker) {
	r.mu.RLock()
	snapshot := make(map[string]*entry, len(r.entries))
	for key, e := range r.entries {
		snapshot[key] = e
	}
	r.mu.RUnlock()

	// Drop checks for retired clients so a deliberately closed tenant does
	// not drag the rollup to unhealthy forever
	for _, check := range checker.GetChecks() {
		key, ok := strings.CutPrefix(check.Name, "tenantdb:")
		if !ok {
			continue
		}
		if _, live := snapshot[key]; !live {
			checker.Remove(check.Name)
		}
	}

	for key, e := range snapshot {
		client := e.client
		checker.RunCheck("tenantdb:"+key, func() error {
			return client.Ping(ctx)
		})
	}
}
