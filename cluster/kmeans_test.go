package cluster

import (
	"context"
	"errors"
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/movierec/core"
)

// blobs 返回三组明显分开的点，每组 4 个。
func blobs() *mat.Dense {
	return mat.NewDense(12, 2, []float64{
		0, 0, 0.1, 0, 0, 0.1, 0.1, 0.1,
		10, 10, 10.1, 10, 10, 10.1, 10.1, 10.1,
		0, 10, 0.1, 10, 0, 10.1, 0.1, 10.1,
	})
}

func TestKMeans_Fit(t *testing.T) {
	m := NewKMeans(0)
	a, err := m.Fit(context.Background(), blobs(), 3)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if a.K != 3 || a.NumUsers() != 12 {
		t.Fatalf("K=%d users=%d", a.K, a.NumUsers())
	}

	labels := a.Labels()
	for g := 0; g < 3; g++ {
		for i := 1; i < 4; i++ {
			if labels[g*4+i] != labels[g*4] {
				t.Errorf("group %d split: %v", g, labels)
			}
		}
	}
	if labels[0] == labels[4] || labels[4] == labels[8] || labels[0] == labels[8] {
		t.Errorf("groups merged: %v", labels)
	}
	if !slices.Equal(a.Sizes(), []int{4, 4, 4}) {
		t.Errorf("sizes = %v", a.Sizes())
	}
	if a.Inertia > 1 {
		t.Errorf("inertia = %v, want small", a.Inertia)
	}
}

func TestKMeans_Deterministic(t *testing.T) {
	x := mat.NewDense(8, 3, []float64{
		5, 3, 0,
		4, 0, 0,
		1, 1, 0,
		1, 0, 5,
		0, 0, 4,
		0, 1, 5,
		5, 4, 0,
		2, 2, 2,
	})
	first, err := NewKMeans(42).Fit(context.Background(), x, 3)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := NewKMeans(42).Fit(context.Background(), x, 3)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(first.Labels(), again.Labels()) || first.Inertia != again.Inertia {
			t.Fatalf("labels differ: %v vs %v", first.Labels(), again.Labels())
		}
	}
}

func TestKMeans_EveryClusterNonEmpty(t *testing.T) {
	// 重复点多于簇数时，每个簇仍至少有一个成员
	x := mat.NewDense(6, 2, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 2})
	for k := 1; k <= 6; k++ {
		a, err := NewKMeans(0).Fit(context.Background(), x, k)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		for c, size := range a.Sizes() {
			if size == 0 {
				t.Errorf("k=%d: cluster %d empty", k, c)
			}
		}
		for u, l := range a.Labels() {
			if l < 0 || l >= k {
				t.Errorf("k=%d: user %d label %d", k, u, l)
			}
		}
	}
}

func TestKMeans_InvalidClusterCount(t *testing.T) {
	x := blobs()
	for _, k := range []int{0, -1, 13} {
		_, err := NewKMeans(0).Fit(context.Background(), x, k)
		if !errors.Is(err, core.ErrInvalidClusterCount) {
			t.Errorf("k=%d: err = %v", k, err)
		}
	}
}

func TestKMeans_EmptyMatrix(t *testing.T) {
	_, err := NewKMeans(0).FitSeed(context.Background(), &mat.Dense{}, 1, 0)
	if !core.IsInvalidInput(err) {
		t.Errorf("err = %v, want invalid input", err)
	}
	if core.IsInvalidClusterCount(err) {
		t.Errorf("err = %v, should not be a cluster count error", err)
	}
}

func TestKMeans_NotFitted(t *testing.T) {
	m := NewKMeans(0)
	if _, err := m.ClusterOf(0); !core.IsModelNotFitted(err) {
		t.Errorf("ClusterOf err = %v", err)
	}
	if _, err := m.MembersOf(0); !core.IsModelNotFitted(err) {
		t.Errorf("MembersOf err = %v", err)
	}
}

func TestKMeans_Lookup(t *testing.T) {
	m := NewKMeans(0)
	a, err := m.Fit(context.Background(), blobs(), 3)
	if err != nil {
		t.Fatal(err)
	}

	label, err := m.ClusterOf(5)
	if err != nil {
		t.Fatal(err)
	}
	members, err := m.MembersOf(label)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(members, []int{4, 5, 6, 7}) {
		t.Errorf("members = %v", members)
	}

	members[0] = 99
	again, _ := a.MembersOf(label)
	if again[0] != 4 {
		t.Error("MembersOf exposes internal slice")
	}

	if _, err := m.ClusterOf(12); !core.IsUnknownUser(err) {
		t.Errorf("ClusterOf(12) err = %v", err)
	}
	if _, err := m.MembersOf(3); !core.IsInvalidInput(err) {
		t.Errorf("MembersOf(3) err = %v", err)
	}
}

func TestKMeans_RefitBumpsVersion(t *testing.T) {
	m := NewKMeans(0)
	a1, err := m.Fit(context.Background(), blobs(), 3)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := m.FitSeed(context.Background(), blobs(), 2, 7)
	if err != nil {
		t.Fatal(err)
	}
	if a2.Version != a1.Version+1 {
		t.Errorf("version %d -> %d", a1.Version, a2.Version)
	}
	cur, _ := m.Assignment()
	if cur != a2 || cur.K != 2 {
		t.Error("latest assignment not published")
	}
}

func TestKMeans_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewKMeans(0)
	if _, err := m.Fit(ctx, blobs(), 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if _, err := m.Assignment(); !core.IsModelNotFitted(err) {
		t.Error("canceled fit published an assignment")
	}
}
