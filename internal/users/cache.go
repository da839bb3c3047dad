package users

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/marketdesk/marketdesk/internal/authz"
)

const (
	principalKeyPrefix  = "principal:"
	generationKeyPrefix = "principal:gen:"
)

// principalSnapshot is the cached form of a principal.
type principalSnapshot struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Tenants []string `json:"tenants"`
}

func snapshotOf(p *authz.Principal) principalSnapshot {
	return principalSnapshot{ID: p.ID, Role: p.Role, Tenants: p.TenantIDs()}
}

func (s principalSnapshot) principal() *authz.Principal {
	return authz.NewPrincipal(s.ID, s.Role, s.Tenants...)
}

// CacheConfig sizes the two cache tiers. A zero LocalSize disables the
// in-process tier; a nil Redis client disables the shared tier.
type CacheConfig struct {
	LocalSize int
	LocalTTL  time.Duration
	RedisTTL  time.Duration
}

// generationTTL keeps a user's generation counter alive well past any
// in-flight load, so an expired counter cannot reopen a stale write.
const generationTTL = 24 * time.Hour

const localStripes = 256

// putIfCurrent writes the snapshot only while the generation counter still
// holds the value the loader read before going to the store.
var putIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[1]) or "0"
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// Generation is the invalidation count a loader observed before reading
// the store. Put refuses to cache a principal once either count has moved.
type Generation struct {
	shared int64
	local  uint64
}

// PrincipalCache keeps principals in a short-lived in-process LRU in front
// of Redis. The local tier can lag an invalidation on another instance by
// at most LocalTTL.
type PrincipalCache struct {
	local    *lru.LRU[int64, principalSnapshot]
	client   *redis.Client
	redisTTL time.Duration

	mu      sync.Mutex
	stripes [localStripes]uint64
}

// NewPrincipalCache builds the cache.
func NewPrincipalCache(client *redis.Client, cfg CacheConfig) *PrincipalCache {
	c := &PrincipalCache{client: client, redisTTL: cfg.RedisTTL}
	if cfg.LocalSize > 0 {
		c.local = lru.NewLRU[int64, principalSnapshot](cfg.LocalSize, nil, cfg.LocalTTL)
	}
	return c
}

// Get returns a cached principal and the tier that served it ("local" or
// "redis"). A miss returns nil with no error.
func (c *PrincipalCache) Get(ctx context.Context, userID int64) (*authz.Principal, string, error) {
	if c == nil {
		return nil, "", nil
	}
	if c.local != nil {
		if snap, ok := c.local.Get(userID); ok {
			return snap.principal(), "local", nil
		}
	}
	if c.client == nil {
		return nil, "", nil
	}
	localGen := c.localGeneration(userID)
	raw, err := c.client.Get(ctx, principalKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	var snap principalSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, "", err
	}
	c.addLocal(userID, snap, localGen)
	return snap.principal(), "redis", nil
}

// Generation reads the user's current invalidation count. Callers take it
// before loading from the store and hand it back to Put.
func (c *PrincipalCache) Generation(ctx context.Context, userID int64) (Generation, error) {
	if c == nil {
		return Generation{}, nil
	}
	gen := Generation{local: c.localGeneration(userID)}
	if c.client == nil {
		return gen, nil
	}
	n, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Generation{}, err
	}
	gen.shared = n
	return gen, nil
}

// Put stores a principal in both tiers unless the user was invalidated
// after gen was read. It reports whether the principal was stored.
func (c *PrincipalCache) Put(ctx context.Context, userID int64, p *authz.Principal, gen Generation) (bool, error) {
	if c == nil || p == nil {
		return false, nil
	}
	snap := snapshotOf(p)
	if c.client != nil {
		raw, err := json.Marshal(snap)
		if err != nil {
			return false, err
		}
		keys := []string{generationKey(userID), principalKey(userID)}
		ok, err := putIfCurrent.Run(ctx, c.client, keys,
			strconv.FormatInt(gen.shared, 10), raw, c.redisTTL.Milliseconds()).Bool()
		if err != nil || !ok {
			return false, err
		}
	}
	return c.addLocal(userID, snap, gen.local), nil
}

// Invalidate bumps the user's generation and drops the principal from both
// tiers, so loads already in flight cannot write it back.
func (c *PrincipalCache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil {
		return nil
	}
	var err error
	if c.client != nil {
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, generationKey(userID))
			pipe.Expire(ctx, generationKey(userID), generationTTL)
			pipe.Del(ctx, principalKey(userID))
			return nil
		})
	}
	c.mu.Lock()
	c.stripes[stripeOf(userID)]++
	if c.local != nil {
		c.local.Remove(userID)
	}
	c.mu.Unlock()
	return err
}

func (c *PrincipalCache) localGeneration(userID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stripes[stripeOf(userID)]
}

// addLocal fills the in-process tier when no invalidation has landed since
// gen was read. Without a local tier it reports success.
func (c *PrincipalCache) addLocal(userID int64, snap principalSnapshot, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stripes[stripeOf(userID)] != gen {
		return false
	}
	if c.local != nil {
		c.local.Add(userID, snap)
	}
	return true
}

func stripeOf(userID int64) int {
	return int(uint64(userID) % localStripes)
}

func principalKey(userID int64) string {
	return principalKeyPrefix + strconv.FormatInt(userID, 10)
}

func generationKey(userID int64) string {
	return generationKeyPrefix + strconv.FormatInt(userID, 10)
}
