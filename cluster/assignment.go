package cluster

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/rushteam/movierec/core"
)

// Assignment 是一次训练产出的不可变聚类结果。
// 每个用户恰好属于一个 [0, K) 内的簇，结果在模型生命周期内保持稳定。
type Assignment struct {
	K          int
	Inertia    float64 // 各点到所属质心的平方距离之和
	Iterations int
	Version    int // 同一模型上的训练次数
	Seed       int64

	// Fingerprint 是 (K, Seed, 全部标签) 的摘要，与进程无关，用于共享缓存的 key
	Fingerprint uint64

	labels    []int
	members   [][]int
	centroids [][]float64
}

func newAssignment(k int, seed int64, labels []int, centroids [][]float64, inertia float64, iterations, version int) *Assignment {
	members := make([][]int, k)
	for u, l := range labels {
		members[l] = append(members[l], u)
	}
	return &Assignment{
		K:           k,
		Inertia:     inertia,
		Iterations:  iterations,
		Version:     version,
		Seed:        seed,
		Fingerprint: fingerprintOf(k, seed, labels),
		labels:      labels,
		members:     members,
		centroids:   centroids,
	}
}

func fingerprintOf(k int, seed int64, labels []int) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(uint64(k))
	put(uint64(seed))
	for _, l := range labels {
		put(uint64(l))
	}
	return d.Sum64()
}

// NumUsers 返回参与聚类的用户数
func (a *Assignment) NumUsers() int { return len(a.labels) }

// ClusterOf 返回用户所属簇，O(1)。
func (a *Assignment) ClusterOf(user int) (int, error) {
	if user < 0 || user >= len(a.labels) {
		return 0, core.NewUnknownUserError(user, len(a.labels))
	}
	return a.labels[user], nil
}

// MembersOf 返回簇内用户（升序），O(簇大小)。返回值为副本。
func (a *Assignment) MembersOf(label int) ([]int, error) {
	if label < 0 || label >= a.K {
		return nil, core.NewInvalidInputError(core.ModuleCluster,
			fmt.Sprintf("cluster: label %d outside [0, %d)", label, a.K))
	}
	out := make([]int, len(a.members[label]))
	copy(out, a.members[label])
	return out, nil
}

// Labels 返回全部用户的簇标签副本（下标为用户 ID）。
func (a *Assignment) Labels() []int {
	out := make([]int, len(a.labels))
	copy(out, a.labels)
	return out
}

// Sizes 返回各簇成员数。
func (a *Assignment) Sizes() []int {
	out := make([]int, a.K)
	for c, m := range a.members {
		out[c] = len(m)
	}
	return out
}

// Centroid 返回簇质心副本。
func (a *Assignment) Centroid(label int) []float64 {
	if label < 0 || label >= a.K {
		return nil
	}
	out := make([]float64, len(a.centroids[label]))
	copy(out, a.centroids[label])
	return out
}
