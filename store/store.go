// Package store 包含评分快照与 KV 存储的实现，接口定义在 core 包。
//
// 示例：
//
//	rs, err := store.NewRatingStore(numUsers, numItems, ratings) // core.RatingSource
//	var kv core.KeyValueStore = store.NewMemoryStore()
//	err = store.SaveSnapshot(ctx, kv, "ml100k", rs)
package store
