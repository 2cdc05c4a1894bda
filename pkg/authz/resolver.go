package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

// RoleSource loads a role's grants from the source of truth
type RoleSource interface {
	LoadPermissions(ctx context.Context, scope tenancy.Scope, roleID int64) (PermissionSet, error)
}

// ResolverConfig configures the permission caches
type ResolverConfig struct {
	CacheSize           int
	CacheTTL            time.Duration
	SharedCacheTTL      time.Duration
	InvalidationChannel string
	KeyPrefix           string
}

// DefaultResolverConfig returns sensible defaults
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CacheSize:           1024,
		CacheTTL:            30 * time.Second,
		SharedCacheTTL:      10 * time.Minute,
		InvalidationChannel: "bos:authz:invalidate",
		KeyPrefix:           "bos:authz:perms",
	}
}

type roleKey struct {
	tenantID int64
	roleID   int64
}

func (k roleKey) String() string {
	return fmt.Sprintf("%d:%d", k.tenantID, k.roleID)
}

func parseRoleKey(s string) (roleKey, error) {
	tenant, role, ok := strings.Cut(s, ":")
	if !ok {
		return roleKey{}, fmt.Errorf("malformed role key %q", s)
	}
	t, err := strconv.ParseInt(tenant, 10, 64)
	if err != nil {
		return roleKey{}, fmt.Errorf("malformed role key %q: %w", s, err)
	}
	r, err := strconv.ParseInt(role, 10, 64)
	if err != nil {
		return roleKey{}, fmt.Errorf("malformed role key %q: %w", s, err)
	}
	return roleKey{tenantID: t, roleID: r}, nil
}

// Resolver turns a caller identity into an evaluable Subject. Cached values
// are always re-derivable from the RoleSource; a cache failure falls through
// to the source rather than denying.
//
// Each role has a local generation and a shared epoch in Redis, both bumped
// by Invalidate. A load only populates the caches if neither moved while it
// ran, so grants read before a revocation are never cached after it.
type Resolver struct {
	source  RoleSource
	local   *lru.LRU[roleKey, PermissionSet]
	redis   *redis.Client
	config  ResolverConfig
	metrics *observability.Metrics

	mu   sync.Mutex
	gens map[roleKey]uint64
}

// sharedEntry is the Redis value: the grants and the epoch they were read under
type sharedEntry struct {
	Epoch       int64         `json:"epoch"`
	Permissions PermissionSet `json:"permissions"`
}

// NewResolver creates a resolver. redisClient may be nil for a single instance.
func NewResolver(source RoleSource, redisClient *redis.Client, config ResolverConfig, metrics *observability.Metrics) *Resolver {
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultResolverConfig().CacheSize
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultResolverConfig().KeyPrefix
	}
	if config.InvalidationChannel == "" {
		config.InvalidationChannel = DefaultResolverConfig().InvalidationChannel
	}
	return &Resolver{
		source:  source,
		local:   lru.NewLRU[roleKey, PermissionSet](config.CacheSize, nil, config.CacheTTL),
		redis:   redisClient,
		config:  config,
		metrics: metrics,
		gens:    make(map[roleKey]uint64),
	}
}

// Subject resolves the identity's grants. A caller without tenant or role
// gets a subject with no permissions, which every check denies.
func (r *Resolver) Subject(ctx context.Context, identity *auth.Identity) (Subject, error) {
	if identity == nil {
		return Subject{}, nil
	}
	s := Subject{UserID: identity.UserID, TenantID: identity.TenantID, RoleID: identity.RoleID}
	if !identity.HasTenant() || !identity.HasRole() {
		return s, nil
	}
	perms, err := r.Permissions(ctx, tenancy.MustFor(identity.TenantID), identity.RoleID)
	if err != nil {
		return Subject{}, err
	}
	s.Permissions = perms
	return s, nil
}

// Permissions returns the role's grants from the first cache tier that has them
func (r *Resolver) Permissions(ctx context.Context, scope tenancy.Scope, roleID int64) (PermissionSet, error) {
	if err := scope.Check(); err != nil {
		return PermissionSet{}, err
	}
	key := roleKey{tenantID: scope.TenantID(), roleID: roleID}
	gen := r.generation(key)

	if perms, ok := r.local.Get(key); ok {
		r.metrics.RecordCache("local", true)
		return perms, nil
	}
	r.metrics.RecordCache("local", false)

	perms, epoch, hit := r.getShared(ctx, key)
	if hit {
		r.addLocal(key, gen, perms)
		return perms, nil
	}

	perms, err := r.source.LoadPermissions(ctx, scope, roleID)
	if err != nil {
		return PermissionSet{}, fmt.Errorf("failed to load permissions for role %d: %w", roleID, err)
	}
	if epoch >= 0 {
		if current, ok := r.sharedEpoch(ctx, key); !ok || current != epoch {
			return perms, nil
		}
	}
	if r.addLocal(key, gen, perms) && epoch >= 0 {
		r.setShared(ctx, key, epoch, perms)
	}
	return perms, nil
}

// Invalidate drops the role from every cache tier and tells other instances
// to do the same. Call it after any change to the role's grants.
func (r *Resolver) Invalidate(ctx context.Context, scope tenancy.Scope, roleID int64) error {
	key := roleKey{tenantID: scope.TenantID(), roleID: roleID}
	r.bump(key)
	if r.redis == nil {
		return nil
	}
	if err := r.redis.Incr(ctx, r.epochKey(key)).Err(); err != nil {
		r.metrics.RecordRedisError("incr")
		return fmt.Errorf("failed to advance permission epoch: %w", err)
	}
	if err := r.redis.Del(ctx, r.sharedKey(key)).Err(); err != nil {
		r.metrics.RecordRedisError("del")
		return fmt.Errorf("failed to drop shared permissions: %w", err)
	}
	if err := r.redis.Publish(ctx, r.config.InvalidationChannel, key.String()).Err(); err != nil {
		r.metrics.RecordRedisError("publish")
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

func (r *Resolver) generation(key roleKey) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[key]
}

// bump removes the local entry and invalidates loads already in flight
func (r *Resolver) bump(key roleKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[key]++
	r.local.Remove(key)
}

// addLocal caches perms unless the role was invalidated since gen was read
func (r *Resolver) addLocal(key roleKey, gen uint64, perms PermissionSet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[key] != gen {
		return false
	}
	r.local.Add(key, perms)
	return true
}

// Listen purges the local cache on invalidations published by other
// instances until ctx is cancelled. Run it with async.SafeGo.
func (r *Resolver) Listen(ctx context.Context) error {
	if r.redis == nil {
		<-ctx.Done()
		return nil
	}
	pubsub := r.redis.Subscribe(ctx, r.config.InvalidationChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.config.InvalidationChannel, err)
	}

	logger := observability.GetLogger(ctx)
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			key, err := parseRoleKey(msg.Payload)
			if err != nil {
				logger.WithError(err).Warn("ignoring invalidation message")
				continue
			}
			r.bump(key)
		}
	}
}

func (r *Resolver) sharedKey(key roleKey) string {
	return r.config.KeyPrefix + ":" + key.String()
}

func (r *Resolver) epochKey(key roleKey) string {
	return r.config.KeyPrefix + ":epoch:" + key.String()
}

func parseEpoch(v interface{}) (int64, bool) {
	if v == nil {
		return 0, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// sharedEpoch reads the role's current epoch; a missing key is epoch 0
func (r *Resolver) sharedEpoch(ctx context.Context, key roleKey) (int64, bool) {
	v, err := r.redis.Get(ctx, r.epochKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		r.metrics.RecordRedisError("get")
		return 0, false
	}
	return parseEpoch(v)
}

// getShared returns the cached grants when they were stored under the
// current epoch, and that epoch. The epoch is -1 when Redis is absent or
// unreadable, in which case nothing should be written back.
func (r *Resolver) getShared(ctx context.Context, key roleKey) (PermissionSet, int64, bool) {
	if r.redis == nil {
		return PermissionSet{}, -1, false
	}
	values, err := r.redis.MGet(ctx, r.sharedKey(key), r.epochKey(key)).Result()
	if err != nil || len(values) != 2 {
		r.metrics.RecordRedisError("mget")
		observability.GetLogger(ctx).WithError(err).Warn("shared permission cache read failed")
		return PermissionSet{}, -1, false
	}
	epoch, ok := parseEpoch(values[1])
	if !ok {
		return PermissionSet{}, -1, false
	}

	raw, ok := values[0].(string)
	if !ok {
		r.metrics.RecordCache("redis", false)
		return PermissionSet{}, epoch, false
	}
	var entry sharedEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Epoch != epoch {
		r.metrics.RecordCache("redis", false)
		return PermissionSet{}, epoch, false
	}
	r.metrics.RecordCache("redis", true)
	return entry.Permissions, epoch, true
}

func (r *Resolver) setShared(ctx context.Context, key roleKey, epoch int64, perms PermissionSet) {
	if r.redis == nil {
		return
	}
	data, err := json.Marshal(sharedEntry{Epoch: epoch, Permissions: perms})
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, r.sharedKey(key), data, r.config.SharedCacheTTL).Err(); err != nil {
		r.metrics.RecordRedisError("set")
		observability.GetLogger(ctx).WithError(err).Warn("shared permission cache write failed")
	}
}
