// Package service 把评分数据、聚类模型与推荐 Pipeline 组装成对外的推荐服务。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/movierec/cluster"
	"github.com/rushteam/movierec/config"
	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/logging"
)

// Strategy 是推荐策略。
type Strategy string

const (
	StrategyCluster  Strategy = "cluster"  // 同簇用户评分求和
	StrategyNeighbor Strategy = "neighbor" // 正相似度近邻加权平均
)

// Strategies 返回全部策略，顺序固定。
func Strategies() []Strategy {
	return []Strategy{StrategyCluster, StrategyNeighbor}
}

// ParseStrategy 解析策略名，空串默认为 cluster。
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyCluster:
		return StrategyCluster, nil
	case StrategyNeighbor:
		return StrategyNeighbor, nil
	default:
		return "", core.NewInvalidInputError(core.ModuleService, fmt.Sprintf("unknown strategy %q", s))
	}
}

// 空结果的原因
const (
	// ReasonNoRecommendations 近邻策略下没有任何物品获得正权重
	ReasonNoRecommendations = "no recommendations possible"

	// ReasonNoCandidates 同簇用户没有目标用户未评过的物品
	ReasonNoCandidates = "no candidates in cluster"
)

// Result 是一次推荐的结果。Items 与 Scores 一一对应，按分数降序、ID 升序。
type Result struct {
	User     int       `json:"user"`
	Strategy Strategy  `json:"strategy"`
	Items    []int     `json:"items"`
	Scores   []float64 `json:"scores"`

	// Reason 仅在结果为空时设置
	Reason string `json:"reason,omitempty"`

	// Version 是产生该结果时的聚类版本，近邻策略恒为 0
	Version int `json:"version"`
}

// Empty 表示没有可推荐的物品。
func (r *Result) Empty() bool {
	return r == nil || len(r.Items) == 0
}

// Recommender 是推荐服务。
//
// 生命周期：New → Fit（独占）→ 任意多个并发 Recommend。
// 评分数据在整个生命周期内只读；Fit 可重复调用，新结果原子替换旧结果。
type Recommender struct {
	ratings core.RatingSource
	model   *cluster.KMeans

	topN           int
	requestTimeout time.Duration
	extraNodes     []pipeline.NodeConfig
	filterStore    core.Store
	cache          *resultCache
	metrics        *Metrics
	log            zerolog.Logger

	pipelines map[Strategy]*pipeline.Pipeline
	scopes    map[Strategy]uint64
}

// Option 推荐服务配置选项
type Option func(*Recommender)

// WithTopN 设置返回数量，最多 core.DefaultTopN
func WithTopN(n int) Option {
	return func(r *Recommender) {
		r.topN = n
	}
}

// WithRequestTimeout 设置单次推荐的墙钟预算，0 表示不限制
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Recommender) {
		r.requestTimeout = d
	}
}

// WithModel 使用指定的聚类模型（例如调整 NInit / MaxIterations）
func WithModel(m *cluster.KMeans) Option {
	return func(r *Recommender) {
		r.model = m
	}
}

// WithPipeline 在推荐源与排序截断之间插入额外 Node，一般是过滤器
func WithPipeline(nodes []pipeline.NodeConfig) Option {
	return func(r *Recommender) {
		r.extraNodes = nodes
	}
}

// WithFilterStore 设置黑名单 / 用户拉黑过滤器读取名单的存储
func WithFilterStore(s core.Store) Option {
	return func(r *Recommender) {
		r.filterStore = s
	}
}

// WithCache 开启结果缓存，ttl 单位为秒
func WithCache(s core.Store, ttl int, prefix string) Option {
	return func(r *Recommender) {
		if s == nil {
			r.cache = nil
			return
		}
		if prefix == "" {
			prefix = "rec"
		}
		r.cache = &resultCache{store: s, ttl: ttl, prefix: prefix}
	}
}

// WithMetrics 设置 Prometheus 指标
func WithMetrics(m *Metrics) Option {
	return func(r *Recommender) {
		r.metrics = m
	}
}

// WithLogger 设置日志，默认使用全局日志的 service 组件
func WithLogger(l zerolog.Logger) Option {
	return func(r *Recommender) {
		r.log = l
	}
}

// New 创建推荐服务并为每个策略构建 Pipeline：推荐源 → 额外 Node → rerank.sort → rerank.topn。
func New(ratings core.RatingSource, opts ...Option) (*Recommender, error) {
	if ratings == nil {
		return nil, core.NewInvalidInputError(core.ModuleService, "ratings is required")
	}
	r := &Recommender{
		ratings:        ratings,
		model:          cluster.NewKMeans(core.DefaultSeed),
		topN:           core.DefaultTopN,
		requestTimeout: core.DefaultRequestTimeout,
		log:            logging.WithComponent("service"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.topN < 1 || r.topN > core.DefaultTopN {
		return nil, core.NewInvalidInputError(core.ModuleService,
			fmt.Sprintf("top_n must be in [1, %d], got %d", core.DefaultTopN, r.topN))
	}

	factory := config.NewFactory(config.Deps{
		Ratings: r.ratings,
		Model:   r.model,
		Store:   r.filterStore,
	})

	// 有额外过滤时推荐源不截断，由 rerank.topn 在过滤之后截断
	sourceTopN := r.topN
	if len(r.extraNodes) > 0 {
		sourceTopN = -1
	}

	r.pipelines = make(map[Strategy]*pipeline.Pipeline, 2)
	r.scopes = make(map[Strategy]uint64, 2)
	for _, s := range Strategies() {
		cfg := &pipeline.Config{Name: string(s)}
		cfg.Nodes = append(cfg.Nodes, pipeline.NodeConfig{
			Type:   "recall." + string(s),
			Config: map[string]any{"top_n": sourceTopN},
		})
		cfg.Nodes = append(cfg.Nodes, r.extraNodes...)
		cfg.Nodes = append(cfg.Nodes,
			pipeline.NodeConfig{Type: "rerank.sort"},
			pipeline.NodeConfig{Type: "rerank.topn", Config: map[string]any{"n": r.topN}},
		)
		p, err := cfg.Build(factory)
		if err != nil {
			return nil, fmt.Errorf("build %s pipeline: %w", s, err)
		}
		// 额外 Node 只能收窄结果；recall Node 会丢弃输入，替换掉所选策略的输出
		for _, n := range p.Nodes[1 : len(p.Nodes)-2] {
			if n.Kind() == pipeline.KindRecall {
				return nil, core.NewInvalidInputError(core.ModuleService,
					fmt.Sprintf("pipeline node %s is a recall node; extra nodes may only filter or rerank", n.Name()))
			}
		}
		r.pipelines[s] = p

		scope, err := pipelineScope(r.ratings.Fingerprint(), cfg)
		if err != nil {
			return nil, fmt.Errorf("%s pipeline fingerprint: %w", s, err)
		}
		r.scopes[s] = scope
	}
	return r, nil
}

// Ratings 返回评分数据。
func (r *Recommender) Ratings() core.RatingSource { return r.ratings }

// Model 返回聚类模型。
func (r *Recommender) Model() *cluster.KMeans { return r.model }

// Fit 在完整评分矩阵上训练 k 个簇。k 不合法时返回 INVALID_CLUSTER_COUNT，属于配置错误。
func (r *Recommender) Fit(ctx context.Context, k int, seed int64) (*cluster.Assignment, error) {
	start := time.Now()
	a, err := r.model.FitSeed(ctx, r.ratings.Matrix(), k, seed)
	if err != nil {
		r.log.Error().Err(err).Int("k", k).Int64("seed", seed).Msg("fit failed")
		return nil, err
	}
	r.metrics.observeFit(a.K, a.Inertia, time.Since(start))
	r.log.Info().
		Int("k", a.K).
		Int("version", a.Version).
		Ints("sizes", a.Sizes()).
		Msg("model published")
	return a, nil
}

// ClusterOf 返回用户所属簇。
func (r *Recommender) ClusterOf(user int) (int, error) {
	if _, err := r.ratings.Profile(user); err != nil {
		return 0, err
	}
	return r.model.ClusterOf(user)
}

// Recommend 为用户生成最多 TopN 个推荐。
//
// 错误：UNKNOWN_USER、MODEL_NOT_FITTED（cluster 策略）、DEGENERATE_VECTOR（neighbor 策略）、
// 以及超出请求预算时的 context.DeadlineExceeded。空结果不是错误，通过 Result.Reason 说明。
func (r *Recommender) Recommend(ctx context.Context, strategy Strategy, user int) (*Result, error) {
	start := time.Now()
	res, err := r.recommend(ctx, strategy, user)
	switch {
	case err != nil:
		r.metrics.observeRequest(strategy, outcomeError, time.Since(start))
		r.log.Warn().Err(err).Str("strategy", string(strategy)).Int("user", user).Msg("recommend failed")
	case res.Empty():
		r.metrics.observeRequest(strategy, outcomeEmpty, time.Since(start))
	default:
		r.metrics.observeRequest(strategy, outcomeOK, time.Since(start))
	}
	return res, err
}

func (r *Recommender) recommend(ctx context.Context, strategy Strategy, user int) (*Result, error) {
	p, ok := r.pipelines[strategy]
	if !ok {
		return nil, core.NewInvalidInputError(core.ModuleService, fmt.Sprintf("unknown strategy %q", strategy))
	}
	if _, err := r.ratings.Profile(user); err != nil {
		return nil, err
	}

	version := 0
	scope := r.scopes[strategy]
	if strategy == StrategyCluster {
		a, err := r.model.Assignment()
		if err != nil {
			return nil, err
		}
		version = a.Version
		scope = mixScope(scope, a.Fingerprint)
	}

	var key string
	if r.cache != nil {
		key = r.cache.key(strategy, scope, user)
		cached, err := r.cache.get(ctx, key)
		switch {
		case err != nil:
			r.metrics.observeCache(strategy, cacheError)
			r.log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		case cached != nil:
			r.metrics.observeCache(strategy, cacheHit)
			cached.Version = version
			return cached, nil
		default:
			r.metrics.observeCache(strategy, cacheMiss)
		}
	}

	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}

	rctx := &core.RecommendContext{UserID: user, Scene: string(strategy)}
	items, err := p.Run(ctx, rctx, nil)
	if err != nil {
		return nil, fmt.Errorf("recommend %s for user %d: %w", strategy, user, err)
	}

	res := &Result{
		User:     user,
		Strategy: strategy,
		Items:    make([]int, 0, len(items)),
		Scores:   make([]float64, 0, len(items)),
		Version:  version,
	}
	for _, it := range items {
		res.Items = append(res.Items, it.ID)
		res.Scores = append(res.Scores, it.Score)
	}
	if res.Empty() {
		res.Reason = emptyReason(strategy)
	}

	if r.cache != nil {
		// 写缓存不受请求超时影响
		if err := r.cache.set(context.WithoutCancel(ctx), key, res); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		}
	}
	return res, nil
}

func emptyReason(s Strategy) string {
	if s == StrategyNeighbor {
		return ReasonNoRecommendations
	}
	return ReasonNoCandidates
}

// IsDeadline 判断错误是否来自请求预算耗尽。
func IsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
