// Package cluster 把用户按完整评分向量划分为固定数量的簇。
//
// 用户是物品维空间中的点（缺失评分为 0），使用 Lloyd 迭代 + k-means++ 初始化。
// 给定相同的矩阵、k 与种子，结果完全确定。
package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/logging"
)

// KMeans 是聚类模型。Fit 为一次性的独占操作，完成后原子地发布不可变的 Assignment；
// 之后 ClusterOf / MembersOf 可被任意多个请求并发调用。
type KMeans struct {
	// Seed 是伪随机种子，必须是配置常量，保证测试可复现
	Seed int64

	// MaxIterations 单次运行的最大迭代次数，默认 300
	MaxIterations int

	// Tolerance 收敛阈值（相对于各列方差均值），默认 1e-4
	Tolerance float64

	// NInit 不同初始化的运行次数，取惯性最小者，默认 10
	NInit int

	fitMu      sync.Mutex
	fits       int
	assignment atomic.Pointer[Assignment]
}

// NewKMeans 创建一个使用给定种子的模型，其余参数取默认值。
func NewKMeans(seed int64) *KMeans {
	return &KMeans{Seed: seed}
}

func (m *KMeans) maxIterations() int {
	if m.MaxIterations <= 0 {
		return 300
	}
	return m.MaxIterations
}

func (m *KMeans) tolerance() float64 {
	if m.Tolerance <= 0 {
		return 1e-4
	}
	return m.Tolerance
}

func (m *KMeans) nInit() int {
	if m.NInit <= 0 {
		return 10
	}
	return m.NInit
}

// Fit 在 用户×物品 矩阵上划分出恰好 k 个簇，并替换之前的结果（无增量更新）。
// k < 1 或 k > 用户数时返回 INVALID_CLUSTER_COUNT。
func (m *KMeans) Fit(ctx context.Context, x *mat.Dense, k int) (*Assignment, error) {
	return m.FitSeed(ctx, x, k, m.Seed)
}

// FitSeed 同 Fit，但使用指定种子而不是 m.Seed。
func (m *KMeans) FitSeed(ctx context.Context, x *mat.Dense, k int, seed int64) (*Assignment, error) {
	if x == nil || x.IsEmpty() {
		return nil, core.NewInvalidInputError(core.ModuleCluster, "kmeans: empty rating matrix (no users or no items)")
	}
	n, _ := x.Dims()
	if k < 1 || k > n {
		return nil, core.NewInvalidClusterCountError(k, n)
	}

	m.fitMu.Lock()
	defer m.fitMu.Unlock()

	log := logging.WithComponent("cluster")
	start := time.Now()

	tol := m.tolerance() * meanColumnVariance(x)
	runs := make([]*run, m.nInit())

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range runs {
		eg.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(seed), uint64(i)))
			r, err := lloyd(egCtx, x, k, rng, m.maxIterations(), tol)
			if err != nil {
				return err
			}
			runs[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("kmeans fit: %w", err)
	}

	best := runs[0]
	for _, r := range runs[1:] {
		if r.inertia < best.inertia {
			best = r
		}
	}

	m.fits++
	a := newAssignment(k, seed, best.labels, best.centroids, best.inertia, best.iterations, m.fits)
	m.assignment.Store(a)

	log.Info().
		Int("k", k).
		Int("users", n).
		Int64("seed", seed).
		Float64("inertia", best.inertia).
		Int("iterations", best.iterations).
		Dur("took", time.Since(start)).
		Msg("kmeans fitted")
	return a, nil
}

// Assignment 返回当前发布的聚类结果；尚未训练时返回 MODEL_NOT_FITTED。
func (m *KMeans) Assignment() (*Assignment, error) {
	a := m.assignment.Load()
	if a == nil {
		return nil, core.ErrModelNotFitted
	}
	return a, nil
}

// ClusterOf 返回用户所属簇。
func (m *KMeans) ClusterOf(user int) (int, error) {
	a, err := m.Assignment()
	if err != nil {
		return 0, err
	}
	return a.ClusterOf(user)
}

// MembersOf 返回簇内全部用户（升序）。
func (m *KMeans) MembersOf(label int) ([]int, error) {
	a, err := m.Assignment()
	if err != nil {
		return nil, err
	}
	return a.MembersOf(label)
}

// run 是单次初始化的 Lloyd 结果。
type run struct {
	labels     []int
	centroids  [][]float64
	inertia    float64
	iterations int
}

func lloyd(ctx context.Context, x *mat.Dense, k int, rng *rand.Rand, maxIter int, tol float64) (*run, error) {
	n, d := x.Dims()
	centroids := seedPlusPlus(x, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		changed, _ := assign(x, centroids, labels)
		fillEmpty(x, centroids, labels)

		next := means(x, labels, k, d)
		var shift float64
		for c := range centroids {
			shift += sqDist(centroids[c], next[c])
		}
		centroids = next

		if !changed || shift <= tol {
			break
		}
	}

	// 收敛后按最终质心重新分配；补空簇后不再重新分配，否则重复点会被并回编号小的簇
	assign(x, centroids, labels)
	fillEmpty(x, centroids, labels)
	inertia := inertiaOf(x, centroids, labels)

	return &run{labels: labels, centroids: centroids, inertia: inertia, iterations: iter}, nil
}

// seedPlusPlus 按 k-means++ 选择初始质心：距离已有质心越远的点被选中概率越大。
func seedPlusPlus(x *mat.Dense, k int, rng *rand.Rand) [][]float64 {
	n, _ := x.Dims()
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneRow(x, rng.IntN(n)))

	dist := make([]float64, n)
	for i := range dist {
		dist[i] = sqDist(x.RawRowView(i), centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(dist)
		pick := 0
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			pick = n - 1
			for i, dv := range dist {
				acc += dv
				if acc > target {
					pick = i
					break
				}
			}
		} else {
			// 所有点与已有质心重合
			pick = rng.IntN(n)
		}

		c := cloneRow(x, pick)
		centroids = append(centroids, c)
		for i := range dist {
			if dv := sqDist(x.RawRowView(i), c); dv < dist[i] {
				dist[i] = dv
			}
		}
	}
	return centroids
}

// assign 把每个点分到最近的质心（距离相同取编号小者），返回是否有变化与总惯性。
func assign(x *mat.Dense, centroids [][]float64, labels []int) (bool, float64) {
	changed := false
	var inertia float64
	for i := range labels {
		row := x.RawRowView(i)
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if dv := sqDist(row, centroid); dv < bestDist {
				best, bestDist = c, dv
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
		inertia += bestDist
	}
	return changed, inertia
}

// fillEmpty 为空簇重新播种：把离自身质心最远、且所在簇不止一个成员的点移入空簇。
// 返回是否做过调整。
func fillEmpty(x *mat.Dense, centroids [][]float64, labels []int) bool {
	sizes := make([]int, len(centroids))
	for _, l := range labels {
		sizes[l]++
	}

	moved := false
	for c, size := range sizes {
		if size > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, l := range labels {
			if sizes[l] < 2 {
				continue
			}
			if dv := sqDist(x.RawRowView(i), centroids[l]); dv > farDist {
				far, farDist = i, dv
			}
		}
		if far < 0 {
			continue // k <= n 时不会发生
		}
		sizes[labels[far]]--
		labels[far] = c
		sizes[c]++
		centroids[c] = cloneRow(x, far)
		moved = true
	}
	return moved
}

// means 计算每个簇的质心。
func means(x *mat.Dense, labels []int, k, d int) [][]float64 {
	sums := make([][]float64, k)
	counts := make([]float64, k)
	for c := range sums {
		sums[c] = make([]float64, d)
	}
	for i, l := range labels {
		floats.Add(sums[l], x.RawRowView(i))
		counts[l]++
	}
	for c := range sums {
		if counts[c] > 0 {
			floats.Scale(1/counts[c], sums[c])
		}
	}
	return sums
}

func inertiaOf(x *mat.Dense, centroids [][]float64, labels []int) float64 {
	var total float64
	for i, l := range labels {
		total += sqDist(x.RawRowView(i), centroids[l])
	}
	return total
}

func meanColumnVariance(x *mat.Dense) float64 {
	n, d := x.Dims()
	if n < 2 || d == 0 {
		return 0
	}
	col := make([]float64, n)
	var total float64
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		total += stat.PopVariance(col, nil)
	}
	return total / float64(d)
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		dv := a[i] - b[i]
		s += dv * dv
	}
	return s
}

func cloneRow(x *mat.Dense, i int) []float64 {
	row := x.RawRowView(i)
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
