package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker shares presence between server instances.  Each auction has
// a sorted set of viewer ids scored by last-seen unix milliseconds plus two
// hashes holding wallets and join times; a global set lists auctions with
// at least one viewer.  Counts may briefly include viewers of a crashed
// instance until stale cleanup removes them.
type RedisTracker struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisTracker returns a tracker storing keys under prefix.
func NewRedisTracker(rdb redis.UniversalClient, prefix string) *RedisTracker {
	if prefix == "" {
		prefix = "presence"
	}
	return &RedisTracker{rdb: rdb, prefix: prefix, now: time.Now}
}

// WithClock replaces the tracker's clock.  Used by tests.
func (t *RedisTracker) WithClock(now func() time.Time) *RedisTracker {
	t.now = now
	return t
}

func (t *RedisTracker) viewersKey(id uint64) string { return fmt.Sprintf("%s:auction:%d", t.prefix, id) }
func (t *RedisTracker) walletsKey(id uint64) string {
	return fmt.Sprintf("%s:auction:%d:wallets", t.prefix, id)
}
func (t *RedisTracker) joinedKey(id uint64) string {
	return fmt.Sprintf("%s:auction:%d:joined", t.prefix, id)
}
func (t *RedisTracker) activeKey() string { return t.prefix + ":active" }

func (t *RedisTracker) AddViewer(ctx context.Context, auctionID uint64, viewerID, wallet string) error {
	ms := t.now().UnixMilli()
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, t.viewersKey(auctionID), redis.Z{Score: float64(ms), Member: viewerID})
		p.HSetNX(ctx, t.joinedKey(auctionID), viewerID, ms)
		if wallet != "" {
			p.HSet(ctx, t.walletsKey(auctionID), viewerID, wallet)
		}
		p.SAdd(ctx, t.activeKey(), auctionID)
		return nil
	})
	return err
}

func (t *RedisTracker) Touch(ctx context.Context, auctionID uint64, viewerID string) error {
	ms := t.now().UnixMilli()
	return t.rdb.ZAddXX(ctx, t.viewersKey(auctionID), redis.Z{Score: float64(ms), Member: viewerID}).Err()
}

func (t *RedisTracker) RemoveViewer(ctx context.Context, auctionID uint64, viewerID string) error {
	if err := t.removeMembers(ctx, auctionID, viewerID); err != nil {
		return err
	}
	return t.dropIfEmpty(ctx, auctionID)
}

func (t *RedisTracker) removeMembers(ctx context.Context, auctionID uint64, viewerIDs ...string) error {
	members := make([]any, len(viewerIDs))
	for i, v := range viewerIDs {
		members[i] = v
	}
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, t.viewersKey(auctionID), members...)
		p.HDel(ctx, t.walletsKey(auctionID), viewerIDs...)
		p.HDel(ctx, t.joinedKey(auctionID), viewerIDs...)
		return nil
	})
	return err
}

// dropIfEmpty removes an auction's keys once its last viewer left.
func (t *RedisTracker) dropIfEmpty(ctx context.Context, auctionID uint64) error {
	n, err := t.rdb.ZCard(ctx, t.viewersKey(auctionID)).Result()
	if err != nil || n > 0 {
		return err
	}
	_, err = t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, t.activeKey(), auctionID)
		p.Del(ctx, t.walletsKey(auctionID), t.joinedKey(auctionID))
		return nil
	})
	return err
}

func (t *RedisTracker) ViewerCount(ctx context.Context, auctionID uint64) (int, error) {
	n, err := t.rdb.ZCard(ctx, t.viewersKey(auctionID)).Result()
	return int(n), err
}

func (t *RedisTracker) CleanupStale(ctx context.Context, auctionID uint64, timeout time.Duration) (int, error) {
	cutoff := t.now().Add(-timeout).UnixMilli()
	stale, err := t.rdb.ZRangeByScore(ctx, t.viewersKey(auctionID), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(stale) > 0 {
		if err := t.removeMembers(ctx, auctionID, stale...); err != nil {
			return 0, err
		}
	}
	return len(stale), t.dropIfEmpty(ctx, auctionID)
}

func (t *RedisTracker) CleanupAllStale(ctx context.Context, timeout time.Duration) (int, error) {
	ids, err := t.ActiveAuctions(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		n, err := t.CleanupStale(ctx, id, timeout)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (t *RedisTracker) ActiveAuctions(ctx context.Context) ([]uint64, error) {
	raw, err := t.rdb.SMembers(ctx, t.activeKey()).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		if id, err := strconv.ParseUint(s, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *RedisTracker) GlobalStats(ctx context.Context) (Stats, error) {
	ids, err := t.ActiveAuctions(ctx)
	if err != nil {
		return Stats{}, err
	}
	cmds := make([]*redis.IntCmd, len(ids))
	_, err = t.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.ZCard(ctx, t.viewersKey(id))
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, c := range cmds {
		if n := c.Val(); n > 0 {
			s.TotalViewers += int(n)
			s.ActiveAuctions++
		}
	}
	return s, nil
}

var (
	_ Tracker = (*RedisTracker)(nil)
	_ Tracker = (*MemoryTracker)(nil)
)
