package config

import (
	"context"
	"fmt"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/store"
)

// OpenCache 按配置创建结果缓存后端；backend 为 none 或空时返回 (nil, nil)。
func OpenCache(ctx context.Context, c CacheSettings) (core.Store, error) {
	switch c.Backend {
	case "", CacheNone:
		return nil, nil
	case CacheMemory:
		return store.NewMemoryStore(), nil
	case CacheRedis:
		s, err := store.NewRedisStore(ctx, c.Addr, c.DB)
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		return s, nil
	default:
		return nil, core.NewInvalidInputError(core.ModuleService, fmt.Sprintf("unknown cache backend %q", c.Backend))
	}
}
