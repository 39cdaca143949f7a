package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/logging"
)

// Pipeline 把推荐逻辑拆成可组合的 Node 链：Recall → Filter → ReRank。
type Pipeline struct {
	Name  string
	Nodes []Node
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	log := logging.WithComponent("pipeline")
	cur := items
	for _, node := range p.Nodes {
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		log.Debug().
			Str("pipeline", p.Name).
			Str("node", node.Name()).
			Str("kind", string(node.Kind())).
			Int("in", len(cur)).
			Int("out", len(next)).
			Dur("took", time.Since(start)).
			Msg("node done")
		cur = next
	}
	return cur, nil
}
