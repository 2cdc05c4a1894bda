package authz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

type countingSource struct {
	mu    sync.Mutex
	perms PermissionSet
	err   error
	calls int
}

func (s *countingSource) LoadPermissions(ctx context.Context, scope tenancy.Scope, roleID int64) (PermissionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.perms, s.err
}

func (s *countingSource) set(p PermissionSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms = p
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// gatedSource snapshots its grants when a load starts, then holds the load
// until release is closed
type gatedSource struct {
	countingSource
	started chan struct{}
	release chan struct{}
}

func newGatedSource(perms PermissionSet) *gatedSource {
	return &gatedSource{
		countingSource: countingSource{perms: perms},
		started:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
}

func (s *gatedSource) LoadPermissions(ctx context.Context, scope tenancy.Scope, roleID int64) (PermissionSet, error) {
	perms, err := s.countingSource.LoadPermissions(ctx, scope, roleID)
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return perms, err
}

func manageRoles() PermissionSet {
	return NewPermissionSet(map[string]catalog.OperationSet{"roles": catalog.AllOperations()})
}

func viewProducts() PermissionSet {
	return NewPermissionSet(map[string]catalog.OperationSet{"products": catalog.NewOperationSet(catalog.OpView)})
}

func TestResolver_LocalCache(t *testing.T) {
	src := &countingSource{perms: viewProducts()}
	r := NewResolver(src, nil, DefaultResolverConfig(), nil)
	ctx := context.Background()
	scope := tenancy.MustFor(3)

	for i := 0; i < 3; i++ {
		perms, err := r.Permissions(ctx, scope, 11)
		require.NoError(t, err)
		assert.True(t, perms.Equal(viewProducts()))
	}
	assert.Equal(t, 1, src.count())

	require.NoError(t, r.Invalidate(ctx, scope, 11))
	_, err := r.Permissions(ctx, scope, 11)
	require.NoError(t, err)
	assert.Equal(t, 2, src.count())
}

func TestResolver_SourceErrorIsReturned(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	r := NewResolver(src, nil, DefaultResolverConfig(), nil)

	_, err := r.Permissions(context.Background(), tenancy.MustFor(3), 11)
	assert.Error(t, err)

	_, err = r.Permissions(context.Background(), tenancy.Scope{}, 11)
	assert.ErrorIs(t, err, tenancy.ErrTenantRequired)
}

func TestResolver_Subject(t *testing.T) {
	src := &countingSource{perms: viewProducts()}
	r := NewResolver(src, nil, DefaultResolverConfig(), nil)
	ctx := context.Background()

	s, err := r.Subject(ctx, &auth.Identity{UserID: 1})
	require.NoError(t, err)
	assert.Zero(t, s.Permissions.Len())
	assert.Equal(t, 0, src.count(), "no tenant means no lookup")

	s, err = r.Subject(ctx, &auth.Identity{UserID: 1, TenantID: 3})
	require.NoError(t, err)
	assert.Zero(t, s.Permissions.Len())

	s, err = r.Subject(ctx, &auth.Identity{UserID: 1, TenantID: 3, RoleID: 11})
	require.NoError(t, err)
	assert.Equal(t, int64(11), s.RoleID)
	assert.True(t, HasPermission(s.Permissions, "products", catalog.OpView))
}

func TestResolver_SharedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	scope := tenancy.MustFor(3)
	src := &countingSource{perms: viewProducts()}

	first := NewResolver(src, client, DefaultResolverConfig(), nil)
	_, err := first.Permissions(ctx, scope, 11)
	require.NoError(t, err)

	key := "bos:authz:perms:3:11"
	require.True(t, mr.Exists(key))
	assert.Equal(t, 10*time.Minute, mr.TTL(key))

	second := NewResolver(src, client, DefaultResolverConfig(), nil)
	perms, err := second.Permissions(ctx, scope, 11)
	require.NoError(t, err)
	assert.True(t, perms.Equal(viewProducts()))
	assert.Equal(t, 1, src.count(), "second instance reads the shared tier")

	require.NoError(t, first.Invalidate(ctx, scope, 11))
	assert.False(t, mr.Exists(key))
}

func TestResolver_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	src := &countingSource{perms: viewProducts()}
	r := NewResolver(src, client, DefaultResolverConfig(), nil)

	perms, err := r.Permissions(context.Background(), tenancy.MustFor(3), 11)
	require.NoError(t, err)
	assert.True(t, CanAccessModule(perms, "products"))
}

func TestResolver_ListenPurgesOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scope := tenancy.MustFor(3)

	src := &countingSource{perms: viewProducts()}
	cfg := DefaultResolverConfig()
	cfg.SharedCacheTTL = time.Minute

	listener := NewResolver(src, client, cfg, nil)
	writer := NewResolver(src, client, cfg, nil)

	_, err := listener.Permissions(ctx, scope, 11)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- listener.Listen(ctx) }()
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels(cfg.InvalidationChannel)) == 1
	}, time.Second, 10*time.Millisecond)

	src.set(NewPermissionSet(nil))
	require.NoError(t, writer.Invalidate(ctx, scope, 11))

	require.Eventually(t, func() bool {
		perms, err := listener.Permissions(ctx, scope, 11)
		return err == nil && perms.Len() == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestResolver_InvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	scope := tenancy.MustFor(3)
	src := newGatedSource(manageRoles())
	r := NewResolver(src, nil, DefaultResolverConfig(), nil)

	inflight := make(chan error, 1)
	go func() {
		_, err := r.Permissions(ctx, scope, 7)
		inflight <- err
	}()
	<-src.started

	src.set(NewPermissionSet(nil))
	require.NoError(t, r.Invalidate(ctx, scope, 7))
	close(src.release)
	require.NoError(t, <-inflight)

	perms, err := r.Permissions(ctx, scope, 7)
	require.NoError(t, err)
	assert.False(t, HasPermission(perms, "roles", catalog.OpDelete), "revoked grant must not be served from cache")
	assert.Equal(t, 2, src.count())
}

func TestResolver_InvalidateDuringLoad_Shared(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	scope := tenancy.MustFor(3)
	src := newGatedSource(manageRoles())

	loader := NewResolver(src, client, DefaultResolverConfig(), nil)
	editor := NewResolver(src, client, DefaultResolverConfig(), nil)

	inflight := make(chan error, 1)
	go func() {
		_, err := loader.Permissions(ctx, scope, 7)
		inflight <- err
	}()
	<-src.started

	src.set(NewPermissionSet(nil))
	require.NoError(t, editor.Invalidate(ctx, scope, 7))
	close(src.release)
	require.NoError(t, <-inflight)

	assert.False(t, mr.Exists("bos:authz:perms:3:7"), "stale grants must not reach the shared tier")

	for name, res := range map[string]*Resolver{"loader": loader, "fresh": NewResolver(src, client, DefaultResolverConfig(), nil)} {
		perms, err := res.Permissions(ctx, scope, 7)
		require.NoError(t, err)
		assert.False(t, HasPermission(perms, "roles", catalog.OpDelete), name)
	}
}

func TestResolver_SharedEntryFromOldEpochIsIgnored(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	scope := tenancy.MustFor(3)
	src := &countingSource{perms: manageRoles()}
	_, err := NewResolver(src, client, DefaultResolverConfig(), nil).Permissions(ctx, scope, 7)
	require.NoError(t, err)

	// Another writer advanced the epoch without the value being dropped
	_, err = mr.Incr("bos:authz:perms:epoch:3:7", 1)
	require.NoError(t, err)
	src.set(NewPermissionSet(nil))

	perms, err := NewResolver(src, client, DefaultResolverConfig(), nil).Permissions(ctx, scope, 7)
	require.NoError(t, err)
	assert.Zero(t, perms.Len())
	assert.Equal(t, 2, src.count())
}

func TestParseRoleKey(t *testing.T) {
	key, err := parseRoleKey("3:11")
	require.NoError(t, err)
	assert.Equal(t, roleKey{tenantID: 3, roleID: 11}, key)

	for _, bad := range []string{"", "3", "a:1", "1:b"} {
		_, err := parseRoleKey(bad)
		assert.Error(t, err, bad)
	}
}
