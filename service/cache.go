package service

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// 缓存查询结果
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

// resultCache 把 Result 以 JSON 存入 core.Store。
//
// key 为 {prefix}:{strategy}:{scope}:{user}。scope 是评分快照、Pipeline 配置与（cluster 策略）
// 聚类结果的摘要，只依赖内容而不依赖进程，多个实例共享同一个 Redis 时不会读到彼此不同数据下的结果。
type resultCache struct {
	store  core.Store
	ttl    int
	prefix string
}

func (c *resultCache) key(strategy Strategy, scope uint64, user int) string {
	return fmt.Sprintf("%s:%s:%016x:%d", c.prefix, strategy, scope, user)
}

// pipelineScope 摘要评分快照与 Pipeline 配置（JSON 编码时 map key 有序）。
func pipelineScope(ratings uint64, cfg *pipeline.Config) (uint64, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}
	return mixScope(ratings, xxhash.Sum64(data)), nil
}

func mixScope(parts ...uint64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(buf[:], p)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// get 未命中时返回 (nil, nil)。
func (c *resultCache) get(ctx context.Context, key string) (*Result, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}

func (c *resultCache) set(ctx context.Context, key string, res *Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if c.ttl > 0 {
		return c.store.Set(ctx, key, data, c.ttl)
	}
	return c.store.Set(ctx, key, data)
}
