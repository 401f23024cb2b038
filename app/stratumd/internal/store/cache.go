package store

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// 矿工热点计数的键前缀
const (
	keyAccepted = "stratumd:worker:accepted:"
	keyRejected = "stratumd:worker:rejected:"
	keyLastSeen = "stratumd:worker:last_seen:"
)

// HotCounters 矿工热点计数，放 Redis 供状态接口低延迟读取
// 计数带过期时间，矿工长期离线后自动回收
type HotCounters struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewHotCounters 创建热点计数
func NewHotCounters(rdb *goredis.Client, ttl time.Duration) *HotCounters {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &HotCounters{rdb: rdb, ttl: ttl}
}

// RecordShare 记录一次提交
func (h *HotCounters) RecordShare(ctx context.Context, worker string, accepted bool) error {
	key := keyAccepted + worker
	if !accepted {
		key = keyRejected + worker
	}

	pipe := h.rdb.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, h.ttl)
	pipe.Set(ctx, keyLastSeen+worker, time.Now().Unix(), h.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// WorkerCounts 读取矿工计数
func (h *HotCounters) WorkerCounts(ctx context.Context, worker string) (accepted, rejected int64, lastSeen time.Time, err error) {
	pipe := h.rdb.Pipeline()
	acceptedCmd := pipe.Get(ctx, keyAccepted+worker)
	rejectedCmd := pipe.Get(ctx, keyRejected+worker)
	lastSeenCmd := pipe.Get(ctx, keyLastSeen+worker)
	if _, err = pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return 0, 0, time.Time{}, err
	}

	accepted, _ = acceptedCmd.Int64()
	rejected, _ = rejectedCmd.Int64()
	if raw, gerr := lastSeenCmd.Result(); gerr == nil {
		if ts, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			lastSeen = time.Unix(ts, 0)
		}
	}
	return accepted, rejected, lastSeen, nil
}
