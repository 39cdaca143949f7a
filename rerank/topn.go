package rerank

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// TopNNode 是一个 Top-N 截断节点，用于在排序后截取前 N 个物品。
// 通常放在 SortNode 之后，限制返回结果数量。
//
// 示例：
//
//	p := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &recall.NeighborRecall{...},
//	        &rerank.SortNode{},
//	        &rerank.TopNNode{N: 10},
//	    },
//	}
type TopNNode struct {
	// N 要保留的物品数量；N <= 0 时不截断
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.N <= 0 || len(items) <= n.N {
		return items, nil
	}
	return items[:n.N], nil
}
