package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gestiohq/gestio/internal/controlplane"
	"github.com/gestiohq/gestio/pkg/health"
)

type fakePublisher struct {
	published []string
	err       error
}

func (p *fakePublisher) PublishRotation(ctx context.Context, tenantID string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, tenantID)
	return nil
}

// newTestBroker wires a broker whose factory step is replaced with an
// in-memory client build, so resolution runs for real but nothing dials out.
func newTestBroker(t *testing.T, store controlplane.Store, publisher RotationPublisher, builds *atomic.Int32) *Broker {
	t.Helper()
	log := testLogger()
	resolver := NewResolver(store, testCipher(t), log)

	registry := NewRegistry(func(ctx context.Context, tenantID string, kind Kind) (*Client, error) {
		if _, err := resolver.Resolve(ctx, tenantID, kind); err != nil {
			return nil, err
		}
		builds.Add(1)
		return newTestClient(tenantID, kind), nil
	}, log)

	return &Broker{
		resolver:  resolver,
		registry:  registry,
		publisher: publisher,
		logger:    log,
	}
}

func TestBrokerTenantWithPrimaryOnly(t *testing.T) {
	cipher := testCipher(t)
	store := &fakeStore{records: map[string]*controlplane.Record{
		"tenant-a": configuredRecord(t, cipher, "tenant-a", "hunter2", false),
	}}

	var builds atomic.Int32
	b := newTestBroker(t, store, nil, &builds)
	ctx := context.Background()

	first, err := b.ResolveClient(ctx, "tenant-a", KindPrimary)
	if err != nil {
		t.Fatalf("ResolveClient failed: %v", err)
	}
	second, err := b.ResolveClient(ctx, "tenant-a", KindPrimary)
	if err != nil {
		t.Fatalf("ResolveClient failed: %v", err)
	}
	if first != second {
		t.Error("repeated resolution returned different clients")
	}
	if got := builds.Load(); got != 1 {
		t.Errorf("connection built %d times, want 1", got)
	}

	if _, err := b.ResolveClient(ctx, "tenant-a", KindSecondary); !errors.Is(err, ErrFeatureNotEnabled) {
		t.Errorf("secondary: got %v, want ErrFeatureNotEnabled", err)
	}
	if b.HasCredentials(ctx, "tenant-a", KindSecondary) {
		t.Error("HasCredentials(secondary) = true with feature disabled")
	}
	if !b.HasCredentials(ctx, "tenant-a", KindPrimary) {
		t.Error("HasCredentials(primary) = false for configured tenant")
	}
}

func TestBrokerUnconfiguredTenant(t *testing.T) {
	store := &fakeStore{records: map[string]*controlplane.Record{
		"tenant-b": {TenantID: "tenant-b"},
	}}

	var builds atomic.Int32
	b := newTestBroker(t, store, nil, &builds)
	ctx := context.Background()

	if _, err := b.ResolveClient(ctx, "ghost", KindPrimary); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("missing tenant: got %v, want ErrTenantNotFound", err)
	}
	if _, err := b.ResolveClient(ctx, "tenant-b", KindPrimary); !errors.Is(err, ErrCredentialsNotConfigured) {
		t.Errorf("empty record: got %v, want ErrCredentialsNotConfigured", err)
	}
	if b.HasCredentials(ctx, "tenant-b", KindPrimary) {
		t.Error("HasCredentials = true for unconfigured tenant")
	}
	if got := builds.Load(); got != 0 {
		t.Errorf("connection built %d times, want 0", got)
	}
}

func TestBrokerCloseAllPublishesRotation(t *testing.T) {
	cipher := testCipher(t)
	store := &fakeStore{records: map[string]*controlplane.Record{
		"tenant-a": configuredRecord(t, cipher, "tenant-a", "hunter2", true),
	}}

	var builds atomic.Int32
	publisher := &fakePublisher{}
	b := newTestBroker(t, store, publisher, &builds)
	ctx := context.Background()

	if _, err := b.ResolveClient(ctx, "tenant-a", KindPrimary); err != nil {
		t.Fatalf("ResolveClient failed: %v", err)
	}

	if err := b.CloseAll(ctx, "tenant-a"); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if len(publisher.published) != 1 || publisher.published[0] != "tenant-a" {
		t.Errorf("published = %v, want [tenant-a]", publisher.published)
	}

	// Re-resolution builds a fresh client rather than reviving the old entry
	if _, err := b.ResolveClient(ctx, "tenant-a", KindPrimary); err != nil {
		t.Fatalf("ResolveClient after CloseAll failed: %v", err)
	}
	if got := builds.Load(); got != 2 {
		t.Errorf("connection built %d times, want 2", got)
	}
}

func TestBrokerCloseAllPublishFailure(t *testing.T) {
	cipher := testCipher(t)
	store := &fakeStore{records: map[string]*controlplane.Record{
		"tenant-a": configuredRecord(t, cipher, "tenant-a", "hunter2", false),
	}}

	var builds atomic.Int32
	publisher := &fakePublisher{err: errors.New("redis down")}
	b := newTestBroker(t, store, publisher, &builds)
	ctx := context.Background()

	if _, err := b.ResolveClient(ctx, "tenant-a", KindPrimary); err != nil {
		t.Fatalf("ResolveClient failed: %v", err)
	}

	// The local cache is still purged even when the broadcast fails
	if err := b.CloseAll(ctx, "tenant-a"); err == nil {
		t.Error("expected publish failure to surface")
	}
	if len(b.ActiveClients()) != 0 {
		t.Error("local clients must be closed despite broadcast failure")
	}
}

func TestBrokerInvalidateTenantDoesNotPublish(t *testing.T) {
	cipher := testCipher(t)
	store := &fakeStore{records: map[string]*controlplane.Record{
		"tenant-a": configuredRecord(t, cipher, "tenant-a", "hunter2", false),
	}}

	var builds atomic.Int32
	publisher := &fakePublisher{}
	b := newTestBroker(t, store, publisher, &builds)
	ctx := context.Background()

	if _, err := b.ResolveClient(ctx, "tenant-a", KindPrimary); err != nil {
		t.Fatalf("ResolveClient failed: %v", err)
	}

	b.InvalidateTenant(ctx, "tenant-a")

	if len(publisher.published) != 0 {
		t.Errorf("InvalidateTenant must not re-publish, got %v", publisher.published)
	}
	if len(b.ActiveClients()) != 0 {
		t.Error("clients remain after invalidation")
	}
}

func TestBrokerHasCredentialsCollapsesStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("control plane unreachable")}

	var builds atomic.Int32
	b := newTestBroker(t, store, nil, &builds)

	if b.HasCredentials(context.Background(), "tenant-a", KindPrimary) {
		t.Error("HasCredentials = true when the control plane is unreachable")
	}
}

func TestBrokerHealthCheck(t *testing.T) {
	cipher := testCipher(t)
	store := &fakeStore{records: map[string]*controlplane.Record{
		"tenant-a": configuredRecord(t, cipher, "tenant-a", "hunter2", false),
	}}

	var builds atomic.Int32
	b := newTestBroker(t, store, nil, &builds)
	ctx := context.Background()

	if _, err := b.ResolveClient(ctx, "tenant-a", KindPrimary); err != nil {
		t.Fatalf("ResolveClient failed: %v", err)
	}

	// Test clients have no live pool, so the ping must report unhealthy
	// rather than panic
	checker := health.NewChecker()
	b.HealthCheck(ctx, checker)

	checks := checker.GetChecks()
	if len(checks) != 1 {
		t.Fatalf("got %d checks, want 1", len(checks))
	}
	if checks[0].Status != health.StatusUnhealthy {
		t.Errorf("check status = %v, want unhealthy", checks[0].Status)
	}
}
