package core

import "gonum.org/v1/gonum/mat"

// Rating 是一条 (用户, 物品, 评分) 观测。用户与物品 ID 均为从 0 开始的稠密整数。
type Rating struct {
	User  int     `json:"user"`
	Item  int     `json:"item"`
	Score float64 `json:"score"`
}

// RatingSource 是召回算法读取评分数据的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 数据为不可变快照，所有方法可并发调用
//
// 实现：
//   - store.RatingStore
type RatingSource interface {
	// NumUsers 返回用户数，合法用户 ID 为 [0, NumUsers)
	NumUsers() int

	// NumItems 返回物品数，合法物品 ID 为 [0, NumItems)
	NumItems() int

	// Profile 返回用户评分画像；用户越界返回 UNKNOWN_USER
	Profile(user int) (UserProfile, error)

	// HasRating 判断用户是否评过该物品（越界时返回 false）
	HasRating(user, item int) bool

	// Fingerprint 返回快照内容摘要，用于跨进程共享的缓存 key
	Fingerprint() uint64

	// Matrix 返回 用户×物品 稠密评分矩阵，缺失评分填 0。
	// 占用 O(用户×物品) 内存，只需要近邻数据时应使用 Profile。
	Matrix() *mat.Dense
}
