package core

import "time"

// 推荐引擎的默认参数。
const (
	// DefaultTopN 是单次推荐返回的最大物品数
	DefaultTopN = 10

	// DefaultClusters 是聚类数 k
	DefaultClusters = 10

	// DefaultSeed 是聚类初始化的伪随机种子，固定以保证结果可复现
	DefaultSeed int64 = 0

	// DefaultRequestTimeout 是单次推荐的墙钟预算
	DefaultRequestTimeout = 5 * time.Second
)
