package recall

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/logging"
	"github.com/rushteam/movierec/pkg/utils"
)

// 合并策略
const (
	MergeFirst    = "first"    // 按 ID 去重，保留 Sources 顺序中第一次出现的
	MergeUnion    = "union"    // 不去重
	MergeMaxScore = "maxscore" // 按 ID 去重，保留分数最高的
)

// Fanout 是一个 Recall Node：并发执行多个推荐源，并合并结果。
// 支持超时、限流与合并策略；结果顺序只取决于 Sources 顺序，与调度无关。
type Fanout struct {
	Sources       []Source
	Timeout       time.Duration // 每个推荐源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	MergeStrategy string        // first / union / maxscore

	// FailFast 为 true 时任一源出错即整体失败；否则跳过出错的源并记录告警。
	// 请求本身的 ctx 超时或取消时总是整体失败，不返回部分结果。
	FailFast bool
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return n.Recall(ctx, rctx)
}

func (n *Fanout) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	results := make([][]*core.Item, len(n.Sources))
	eg, egCtx := errgroup.WithContext(ctx)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		eg.Go(func() error {
			recallCtx := egCtx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(egCtx, n.Timeout)
				defer cancel()
			}

			items, err := src.Recall(recallCtx, rctx)
			if err != nil {
				if n.FailFast || ctx.Err() != nil {
					return fmt.Errorf("%s: %w", src.Name(), err)
				}
				logging.Warn().Err(err).Str("source", src.Name()).Msg("recall source failed, skipped")
				return nil
			}

			for _, it := range items {
				it.PutLabel("recall_priority", utils.Label{Value: strconv.Itoa(i), Source: "recall"})
			}
			results[i] = items
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fanout: %w", err)
	}

	var all []*core.Item
	for _, items := range results {
		all = append(all, items...)
	}

	switch n.MergeStrategy {
	case MergeUnion:
		return all, nil
	case MergeMaxScore:
		return mergeMaxScore(all), nil
	default:
		return mergeFirst(all), nil
	}
}

// mergeFirst 按 ID 去重，保留第一个出现的，后来者的 labels 合并进去。
func mergeFirst(all []*core.Item) []*core.Item {
	seen := make(map[int]*core.Item, len(all))
	out := make([]*core.Item, 0, len(all))
	for _, it := range all {
		if it == nil {
			continue
		}
		if old, ok := seen[it.ID]; ok {
			for k, v := range it.Labels {
				old.PutLabel(k, v)
			}
			continue
		}
		seen[it.ID] = it
		out = append(out, it)
	}
	return out
}

// mergeMaxScore 按 ID 去重，保留分数更高的（相同分数保留先出现的）。
func mergeMaxScore(all []*core.Item) []*core.Item {
	index := make(map[int]int, len(all))
	out := make([]*core.Item, 0, len(all))
	for _, it := range all {
		if it == nil {
			continue
		}
		pos, ok := index[it.ID]
		if !ok {
			index[it.ID] = len(out)
			out = append(out, it)
			continue
		}
		old := out[pos]
		if it.Score > old.Score {
			for k, v := range old.Labels {
				it.PutLabel(k, v)
			}
			out[pos] = it
			continue
		}
		for k, v := range it.Labels {
			old.PutLabel(k, v)
		}
	}
	return out
}
