package core

import "github.com/rushteam/movierec/pkg/utils"

// Item 是推荐链路中的统一承载结构：分数、元信息、标签。
// Labels 用于解释与策略驱动；Score 用于排序决策。
type Item struct {
	ID     int
	Score  float64
	Meta   map[string]any
	Labels map[string]utils.Label
}

func NewItem(id int) *Item {
	return &Item{
		ID:     id,
		Meta:   make(map[string]any),
		Labels: make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// LabelValue 返回 Label 的值，不存在时返回空串。
func (it *Item) LabelValue(key string) string {
	if it.Labels == nil {
		return ""
	}
	return it.Labels[key].Value
}

// ItemIDs 提取物品 ID 列表（保持顺序）。
func ItemIDs(items []*Item) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it.ID)
		}
	}
	return out
}
