package filter

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rushteam/movierec/core"
)

// StoreAdapter 将 core.Store 适配为过滤器所需的存储接口。
//   - 后端实现 KeyValueStore 时，名单存放在集合里（SMembers）
//   - 否则存放为 JSON 数组，例如 [12, 40, 7]
type StoreAdapter struct {
	store core.Store
}

// NewStoreAdapter 创建一个 core.Store 适配器。
func NewStoreAdapter(s core.Store) *StoreAdapter {
	return &StoreAdapter{store: s}
}

// GetBlacklist 从 Store 读取物品 ID 名单；key 不存在时返回空名单。
func (a *StoreAdapter) GetBlacklist(ctx context.Context, key string) ([]int, error) {
	if kv, ok := a.store.(core.KeyValueStore); ok {
		members, err := kv.SMembers(ctx, key)
		if err != nil {
			return nil, err
		}
		ids := make([]int, 0, len(members))
		for _, m := range members {
			id, err := strconv.Atoi(m)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}

	data, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetUserBlocks 读取用户拉黑的物品，key 为 {keyPrefix}:{user}。
func (a *StoreAdapter) GetUserBlocks(ctx context.Context, user int, keyPrefix string) ([]int, error) {
	return a.GetBlacklist(ctx, keyPrefix+":"+strconv.Itoa(user))
}
