package filter

import (
	"context"
	"slices"

	"github.com/rushteam/movierec/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉全局下架的物品。
type BlacklistFilter struct {
	// ItemIDs 是内存中的黑名单物品 ID 列表
	ItemIDs []int

	// Store 用于从存储中读取黑名单（可选）
	Store BlacklistStore

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

// BlacklistStore 是黑名单存储接口。
type BlacklistStore interface {
	// GetBlacklist 获取黑名单物品 ID 列表
	GetBlacklist(ctx context.Context, key string) ([]int, error)
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []int, storeAdapter *StoreAdapter, key string) *BlacklistFilter {
	var store BlacklistStore
	if storeAdapter != nil {
		store = storeAdapter
	}
	return &BlacklistFilter{
		ItemIDs: itemIDs,
		Store:   store,
		Key:     key,
	}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}

	if slices.Contains(f.ItemIDs, item.ID) {
		return true, nil
	}

	if f.Store != nil && f.Key != "" {
		blacklist, err := f.Store.GetBlacklist(ctx, f.Key)
		if err != nil {
			return false, err
		}
		if slices.Contains(blacklist, item.ID) {
			return true, nil
		}
	}

	return false, nil
}
