package core

import "sort"

// UserProfile 是单个用户的评分画像：(物品, 评分) 集合。
//
// 它是评分存储上的只读视图：
//   - 按物品 ID 升序排列，便于做有序归并求交集
//   - 每个物品至多一条评分
//   - 构造后不再修改，可被多个请求并发读取
type UserProfile struct {
	User   int
	items  []int
	scores []float64
}

// NewUserProfile 从 (item -> score) 构建画像，内部按物品 ID 排序。
func NewUserProfile(user int, ratings map[int]float64) UserProfile {
	items := make([]int, 0, len(ratings))
	for item := range ratings {
		items = append(items, item)
	}
	sort.Ints(items)
	scores := make([]float64, len(items))
	for i, item := range items {
		scores[i] = ratings[item]
	}
	return UserProfile{User: user, items: items, scores: scores}
}

// Len 返回评分条数
func (p UserProfile) Len() int { return len(p.items) }

// Items 返回已评分物品（升序）。返回值不可修改。
func (p UserProfile) Items() []int { return p.items }

// Scores 返回与 Items 一一对应的评分。返回值不可修改。
func (p UserProfile) Scores() []float64 { return p.scores }

// At 返回第 i 条评分
func (p UserProfile) At(i int) (item int, score float64) {
	return p.items[i], p.scores[i]
}

// Score 返回用户对物品的评分
func (p UserProfile) Score(item int) (float64, bool) {
	i := sort.SearchInts(p.items, item)
	if i < len(p.items) && p.items[i] == item {
		return p.scores[i], true
	}
	return 0, false
}

// Has 判断用户是否评过该物品
func (p UserProfile) Has(item int) bool {
	_, ok := p.Score(item)
	return ok
}
