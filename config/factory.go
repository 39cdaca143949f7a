package config

import (
	"fmt"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/filter"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/conv"
	"github.com/rushteam/movierec/recall"
	"github.com/rushteam/movierec/rerank"
)

// Deps 是构建 Node 所需的运行时依赖。配置只描述结构，依赖由调用方注入。
type Deps struct {
	// Ratings 评分数据，recall.* 与 filter.seen 需要
	Ratings core.RatingSource

	// Model 聚类结果，recall.cluster 需要
	Model recall.ClusterLookup

	// Store 名单存储，filter 中 blacklist(key) / user_block 需要（可选）
	Store core.Store
}

// NewFactory 返回注册了所有内置 Node 的工厂：
//
//	recall.cluster / recall.neighbor / recall.fanout
//	filter
//	rerank.sort / rerank.topn
func NewFactory(deps Deps) *pipeline.NodeFactory {
	b := &builders{deps: deps}
	f := pipeline.NewNodeFactory()

	f.Register("recall.cluster", b.cluster)
	f.Register("recall.neighbor", b.neighbor)
	f.Register("recall.fanout", b.fanout)

	f.Register("filter", b.filter)

	f.Register("rerank.sort", buildSortNode)
	f.Register("rerank.topn", buildTopNNode)

	return f
}

type builders struct {
	deps Deps
}

func (b *builders) cluster(cfg map[string]any) (pipeline.Node, error) {
	src, err := b.source("cluster", cfg)
	if err != nil {
		return nil, err
	}
	return src.(pipeline.Node), nil
}

func (b *builders) neighbor(cfg map[string]any) (pipeline.Node, error) {
	src, err := b.source("neighbor", cfg)
	if err != nil {
		return nil, err
	}
	return src.(pipeline.Node), nil
}

// source 构建单个推荐源，recall.cluster / recall.neighbor 与 fanout 的 sources 共用。
func (b *builders) source(kind string, cfg map[string]any) (recall.Source, error) {
	if b.deps.Ratings == nil {
		return nil, fmt.Errorf("%s source requires ratings", kind)
	}
	topN := conv.ConfigGetInt(cfg, "top_n", core.DefaultTopN)
	switch kind {
	case "cluster":
		if b.deps.Model == nil {
			return nil, fmt.Errorf("cluster source requires a cluster model")
		}
		return &recall.ClusterRecall{Ratings: b.deps.Ratings, Model: b.deps.Model, TopN: topN}, nil
	case "neighbor":
		return &recall.NeighborRecall{Ratings: b.deps.Ratings, TopN: topN}, nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", kind)
	}
}

func (b *builders) fanout(cfg map[string]any) (pipeline.Node, error) {
	sourcesConfig, ok := cfg["sources"].([]any)
	if !ok {
		return nil, fmt.Errorf("sources not found or invalid")
	}

	sources := make([]recall.Source, 0, len(sourcesConfig))
	for _, sc := range sourcesConfig {
		sourceMap, ok := sc.(map[string]any)
		if !ok {
			continue
		}
		src, err := b.source(conv.ConfigGet(sourceMap, "type", ""), sourceMap)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	fanout := &recall.Fanout{
		Sources:       sources,
		Timeout:       conv.ConfigGetDuration(cfg, "timeout", 0),
		MaxConcurrent: conv.ConfigGetInt(cfg, "max_concurrent", 0),
		FailFast:      conv.ConfigGet(cfg, "fail_fast", false),
	}
	switch strategy := conv.ConfigGet(cfg, "merge_strategy", recall.MergeFirst); strategy {
	case recall.MergeFirst, recall.MergeUnion, recall.MergeMaxScore:
		fanout.MergeStrategy = strategy
	default:
		return nil, fmt.Errorf("unknown merge strategy: %s", strategy)
	}
	return fanout, nil
}

func (b *builders) filter(cfg map[string]any) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]any)
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}

	var adapter *filter.StoreAdapter
	if b.deps.Store != nil {
		adapter = filter.NewStoreAdapter(b.deps.Store)
	}

	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		filterType := conv.ConfigGet(filterMap, "type", "")
		switch filterType {
		case "seen":
			if b.deps.Ratings == nil {
				return nil, fmt.Errorf("seen filter requires ratings")
			}
			filters = append(filters, &filter.SeenFilter{Ratings: b.deps.Ratings})

		case "blacklist":
			ids := conv.SliceAnyToInt(filterMap["item_ids"])
			key := conv.ConfigGet(filterMap, "key", "")
			if key != "" && adapter == nil {
				return nil, fmt.Errorf("blacklist key %q requires a store", key)
			}
			filters = append(filters, filter.NewBlacklistFilter(ids, adapter, key))

		case "user_block":
			if adapter == nil {
				return nil, fmt.Errorf("user_block filter requires a store")
			}
			keyPrefix := conv.ConfigGet(filterMap, "key_prefix", "")
			filters = append(filters, filter.NewUserBlockFilter(adapter, keyPrefix))

		case "expr":
			f, err := filter.NewExprFilter(conv.ConfigGet(filterMap, "expr", ""))
			if err != nil {
				return nil, fmt.Errorf("expr filter: %w", err)
			}
			filters = append(filters, f)

		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}

	return &filter.FilterNode{
		Filters: filters,
		Strict:  conv.ConfigGet(cfg, "strict", false),
	}, nil
}

func buildSortNode(_ map[string]any) (pipeline.Node, error) {
	return &rerank.SortNode{}, nil
}

func buildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	n := conv.ConfigGetInt(cfg, "n", core.DefaultTopN)
	if n < 1 || n > core.DefaultTopN {
		return nil, fmt.Errorf("rerank.topn: n must be in [1, %d], got %d", core.DefaultTopN, n)
	}
	return &rerank.TopNNode{N: n}, nil
}
