package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rushteam/movierec/core"
)

// 评分快照在 KV 存储中的布局：
//
//	{prefix}:meta         -> {"users":N,"items":M}
//	{prefix}:user:{user}  -> {"item":score,...}
//
// 用于多实例之间共享同一份摄入结果；聚类模型本身不落盘。
const defaultSnapshotPrefix = "ratings"

type snapshotMeta struct {
	Users int `json:"users"`
	Items int `json:"items"`
}

func snapshotKeys(prefix string) (meta string, user func(int) string) {
	if prefix == "" {
		prefix = defaultSnapshotPrefix
	}
	return prefix + ":meta", func(u int) string {
		return prefix + ":user:" + strconv.Itoa(u)
	}
}

// SaveSnapshot 将评分快照写入 KV 存储（覆盖同前缀的旧数据）。
func SaveSnapshot(ctx context.Context, kv core.Store, prefix string, src core.RatingSource) error {
	metaKey, userKey := snapshotKeys(prefix)

	kvs := make(map[string][]byte, src.NumUsers()+1)
	for u := 0; u < src.NumUsers(); u++ {
		p, err := src.Profile(u)
		if err != nil {
			return err
		}
		scores := make(map[int]float64, p.Len())
		for i := 0; i < p.Len(); i++ {
			item, score := p.At(i)
			scores[item] = score
		}
		data, err := json.Marshal(scores)
		if err != nil {
			return fmt.Errorf("encode user %d: %w", u, err)
		}
		kvs[userKey(u)] = data
	}
	if err := kv.BatchSet(ctx, kvs); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}

	// meta 最后写入：读取方以 meta 存在作为快照完整的标志
	meta, err := json.Marshal(snapshotMeta{Users: src.NumUsers(), Items: src.NumItems()})
	if err != nil {
		return err
	}
	return kv.Set(ctx, metaKey, meta)
}

// LoadSnapshot 从 KV 存储读取评分快照并构建 RatingStore。
// meta 不存在时返回 core.ErrStoreNotFound。
func LoadSnapshot(ctx context.Context, kv core.Store, prefix string) (*RatingStore, error) {
	metaKey, userKey := snapshotKeys(prefix)

	raw, err := kv.Get(ctx, metaKey)
	if err != nil {
		return nil, err
	}
	var meta snapshotMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode snapshot meta: %w", err)
	}

	keys := make([]string, meta.Users)
	for u := range keys {
		keys[u] = userKey(u)
	}
	blobs, err := kv.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var ratings []core.Rating
	for u, key := range keys {
		data, ok := blobs[key]
		if !ok {
			continue // 没有评分的用户
		}
		var scores map[int]float64
		if err := json.Unmarshal(data, &scores); err != nil {
			return nil, fmt.Errorf("decode user %d: %w", u, err)
		}
		for item, score := range scores {
			ratings = append(ratings, core.Rating{User: u, Item: item, Score: score})
		}
	}
	return NewRatingStore(meta.Users, meta.Items, ratings)
}
