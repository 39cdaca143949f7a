package recall

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/store"
)

type staticClusters []int

func (c staticClusters) ClusterOf(user int) (int, error) {
	if user < 0 || user >= len(c) {
		return 0, core.NewUnknownUserError(user, len(c))
	}
	return c[user], nil
}

func (c staticClusters) MembersOf(label int) ([]int, error) {
	var out []int
	for u, l := range c {
		if l == label {
			out = append(out, u)
		}
	}
	return out, nil
}

func newRatings(t *testing.T, users, items int, ratings ...core.Rating) *store.RatingStore {
	t.Helper()
	s, err := store.NewRatingStore(users, items, ratings)
	if err != nil {
		t.Fatalf("NewRatingStore: %v", err)
	}
	return s
}

func r(user, item int, score float64) core.Rating {
	return core.Rating{User: user, Item: item, Score: score}
}

func ids(items []*core.Item) []int { return core.ItemIDs(items) }

func TestClusterRecall(t *testing.T) {
	tests := []struct {
		name     string
		ratings  []core.Rating
		clusters staticClusters
		user     int
		want     []int
		scores   []float64
	}{
		{
			// U={1:5,2:3}, V={1:4,3:5}, W={3:2} 同簇：物品 3 累加 5+2=7，物品 1 已评过
			name:     "peer ratings are summed",
			ratings:  []core.Rating{r(0, 1, 5), r(0, 2, 3), r(1, 1, 4), r(1, 3, 5), r(2, 3, 2)},
			clusters: staticClusters{0, 0, 0},
			user:     0,
			want:     []int{3},
			scores:   []float64{7},
		},
		{
			name:     "other clusters are ignored",
			ratings:  []core.Rating{r(0, 1, 5), r(1, 2, 4), r(2, 3, 5)},
			clusters: staticClusters{0, 0, 1},
			user:     0,
			want:     []int{2},
			scores:   []float64{4},
		},
		{
			name:     "ties break by ascending item id",
			ratings:  []core.Rating{r(0, 0, 1), r(1, 3, 4), r(1, 2, 4), r(1, 1, 5)},
			clusters: staticClusters{0, 0},
			user:     0,
			want:     []int{1, 2, 3},
			scores:   []float64{5, 4, 4},
		},
		{
			name:     "singleton cluster yields empty result",
			ratings:  []core.Rating{r(0, 1, 5), r(1, 2, 4)},
			clusters: staticClusters{0, 1},
			user:     0,
			want:     []int{},
		},
		{
			name:     "user without ratings gets every peer item",
			ratings:  []core.Rating{r(1, 2, 4), r(2, 2, 1), r(2, 3, 3)},
			clusters: staticClusters{0, 0, 0},
			user:     0,
			want:     []int{2, 3},
			scores:   []float64{5, 3},
		},
		{
			name:     "peers with only seen items contribute nothing",
			ratings:  []core.Rating{r(0, 1, 5), r(1, 1, 2)},
			clusters: staticClusters{0, 0},
			user:     0,
			want:     []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &ClusterRecall{
				Ratings: newRatings(t, len(tt.clusters), 5, tt.ratings...),
				Model:   tt.clusters,
			}
			items, err := src.Recall(context.Background(), &core.RecommendContext{UserID: tt.user})
			if err != nil {
				t.Fatalf("Recall: %v", err)
			}
			if got := ids(items); !slices.Equal(got, tt.want) {
				t.Fatalf("items = %v, want %v", got, tt.want)
			}
			for i, s := range tt.scores {
				if items[i].Score != s {
					t.Errorf("score[%d] = %v, want %v", i, items[i].Score, s)
				}
			}
			for _, it := range items {
				if it.LabelValue(LabelRecallSource) != "recall.cluster" {
					t.Errorf("item %d recall_source = %q", it.ID, it.LabelValue(LabelRecallSource))
				}
			}
		})
	}
}

func TestClusterRecall_TopTenAndUnseen(t *testing.T) {
	var ratings []core.Rating
	ratings = append(ratings, r(0, 0, 3), r(0, 1, 3))
	for item := 0; item < 30; item++ {
		ratings = append(ratings, r(1, item, float64(1+item%5)))
	}
	src := &ClusterRecall{
		Ratings: newRatings(t, 2, 30, ratings...),
		Model:   staticClusters{0, 0},
		TopN:    50,
	}
	items, err := src.Recall(context.Background(), &core.RecommendContext{UserID: 0})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(items) != core.DefaultTopN {
		t.Fatalf("len = %d, want %d", len(items), core.DefaultTopN)
	}
	for i, it := range items {
		if it.ID == 0 || it.ID == 1 {
			t.Errorf("seen item %d recommended", it.ID)
		}
		if i > 0 {
			prev := items[i-1]
			if prev.Score < it.Score || (prev.Score == it.Score && prev.ID > it.ID) {
				t.Errorf("order violated at %d: %v(%v) before %v(%v)", i, prev.ID, prev.Score, it.ID, it.Score)
			}
		}
	}
}

func TestClusterRecall_Errors(t *testing.T) {
	ratings := newRatings(t, 2, 2, r(0, 0, 1), r(1, 1, 1))

	src := &ClusterRecall{Ratings: ratings, Model: staticClusters{0, 0}}
	if _, err := src.Recall(context.Background(), &core.RecommendContext{UserID: 5}); !core.IsUnknownUser(err) {
		t.Errorf("unknown user: err = %v", err)
	}

	notFitted := &ClusterRecall{Ratings: ratings, Model: unfitted{}}
	if _, err := notFitted.Recall(context.Background(), &core.RecommendContext{UserID: 0}); !errors.Is(err, core.ErrModelNotFitted) {
		t.Errorf("not fitted: err = %v", err)
	}
}

type unfitted struct{}

func (unfitted) ClusterOf(int) (int, error)   { return 0, core.ErrModelNotFitted }
func (unfitted) MembersOf(int) ([]int, error) { return nil, core.ErrModelNotFitted }

func TestNeighborRecall(t *testing.T) {
	tests := []struct {
		name    string
		users   int
		ratings []core.Rating
		user    int
		want    []int
		scores  []float64
	}{
		{
			// U={1:5}, V={1:5,2:4}，相似度 1.0：预测 (4*1)/1 = 4
			name:    "single identical neighbor",
			users:   2,
			ratings: []core.Rating{r(0, 1, 5), r(1, 1, 5), r(1, 2, 4)},
			user:    0,
			want:    []int{2},
			scores:  []float64{4},
		},
		{
			// 两个近邻相似度都为 1：(4+2)/(1+1) = 3，分母在全部近邻上累加
			name:    "weights accumulate across neighbors",
			users:   3,
			ratings: []core.Rating{r(0, 1, 5), r(1, 1, 3), r(1, 2, 4), r(2, 1, 1), r(2, 2, 2)},
			user:    0,
			want:    []int{2},
			scores:  []float64{3},
		},
		{
			name:    "no common items gives empty result",
			users:   3,
			ratings: []core.Rating{r(0, 1, 5), r(1, 2, 4), r(2, 3, 3)},
			user:    0,
			want:    []int{},
		},
		{
			name:    "user without ratings has no neighbors",
			users:   3,
			ratings: []core.Rating{r(1, 1, 4), r(2, 1, 3), r(2, 2, 5)},
			user:    0,
			want:    []int{},
		},
		{
			// U=(1,-1) 与 V=(-1,1) 相似度 -1，W 无共同物品：全部非正
			name:    "non-positive similarities are discarded",
			users:   3,
			ratings: []core.Rating{r(0, 1, 1), r(0, 2, -1), r(1, 1, -1), r(1, 2, 1), r(1, 3, 5), r(2, 4, 5)},
			user:    0,
			want:    []int{},
		},
		{
			name:  "negative neighbor does not dilute positive one",
			users: 3,
			ratings: []core.Rating{
				r(0, 1, 1), r(0, 2, -1),
				r(1, 1, -1), r(1, 2, 1), r(1, 3, 1),
				r(2, 1, 2), r(2, 2, -2), r(2, 3, 5),
			},
			user:   0,
			want:   []int{3},
			scores: []float64{5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &NeighborRecall{Ratings: newRatings(t, tt.users, 5, tt.ratings...)}
			items, err := src.Recall(context.Background(), &core.RecommendContext{UserID: tt.user})
			if err != nil {
				t.Fatalf("Recall: %v", err)
			}
			if got := ids(items); !slices.Equal(got, tt.want) {
				t.Fatalf("items = %v, want %v", got, tt.want)
			}
			for i, s := range tt.scores {
				if diff := items[i].Score - s; diff > 1e-12 || diff < -1e-12 {
					t.Errorf("score[%d] = %v, want %v", i, items[i].Score, s)
				}
			}
		})
	}
}

func TestNeighborRecall_Neighbors(t *testing.T) {
	src := &NeighborRecall{Ratings: newRatings(t, 4, 4,
		r(0, 0, 5), r(0, 1, 3),
		r(1, 0, 5), r(1, 1, 3),
		r(2, 2, 4),
		r(3, 0, 1),
	)}
	got, err := src.Neighbors(context.Background(), 0)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 2 || got[0].User != 1 || got[1].User != 3 {
		t.Fatalf("neighbors = %+v, want users [1 3]", got)
	}
	for _, nb := range got {
		if nb.Similarity <= 0 || nb.Similarity > 1+1e-12 {
			t.Errorf("similarity(0,%d) = %v out of (0,1]", nb.User, nb.Similarity)
		}
	}
}

func TestNeighborRecall_Deadline(t *testing.T) {
	src := &NeighborRecall{Ratings: newRatings(t, 3, 2, r(0, 0, 1), r(1, 0, 1), r(1, 1, 2), r(2, 1, 1))}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := src.Recall(ctx, &core.RecommendContext{UserID: 0}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestNeighborRecall_UnknownUser(t *testing.T) {
	src := &NeighborRecall{Ratings: newRatings(t, 1, 1, r(0, 0, 1))}
	if _, err := src.Recall(context.Background(), &core.RecommendContext{UserID: -1}); !core.IsUnknownUser(err) {
		t.Fatalf("err = %v, want unknown user", err)
	}
}

type stubSource struct {
	name  string
	items []*core.Item
	err   error
	delay time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Recall(ctx context.Context, _ *core.RecommendContext) ([]*core.Item, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*core.Item, len(s.items))
	for i, it := range s.items {
		c := core.NewItem(it.ID)
		c.Score = it.Score
		out[i] = c
	}
	return out, nil
}

func scored(id int, score float64) *core.Item {
	it := core.NewItem(id)
	it.Score = score
	return it
}

func TestFanout(t *testing.T) {
	a := &stubSource{name: "a", items: []*core.Item{scored(1, 1), scored(2, 5)}}
	b := &stubSource{name: "b", items: []*core.Item{scored(2, 9), scored(3, 2)}}
	broken := &stubSource{name: "broken", err: errors.New("boom")}

	tests := []struct {
		name     string
		fanout   *Fanout
		wantIDs  []int
		wantErr  bool
		scoreFor map[int]float64
	}{
		{
			name:     "first keeps earliest source",
			fanout:   &Fanout{Sources: []Source{a, b}},
			wantIDs:  []int{1, 2, 3},
			scoreFor: map[int]float64{2: 5},
		},
		{
			name:    "union keeps duplicates",
			fanout:  &Fanout{Sources: []Source{a, b}, MergeStrategy: MergeUnion},
			wantIDs: []int{1, 2, 2, 3},
		},
		{
			name:     "maxscore keeps best",
			fanout:   &Fanout{Sources: []Source{a, b}, MergeStrategy: MergeMaxScore},
			wantIDs:  []int{1, 2, 3},
			scoreFor: map[int]float64{2: 9},
		},
		{
			name:    "failed source is skipped",
			fanout:  &Fanout{Sources: []Source{broken, b}, MaxConcurrent: 1},
			wantIDs: []int{2, 3},
		},
		{
			name:    "fail fast",
			fanout:  &Fanout{Sources: []Source{a, broken}, FailFast: true},
			wantErr: true,
		},
		{
			name: "slow source times out",
			fanout: &Fanout{
				Sources: []Source{&stubSource{name: "slow", delay: time.Second, items: []*core.Item{scored(7, 1)}}, a},
				Timeout: 10 * time.Millisecond,
			},
			wantIDs: []int{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := tt.fanout.Recall(context.Background(), &core.RecommendContext{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Recall: %v", err)
			}
			if got := ids(items); !slices.Equal(got, tt.wantIDs) {
				t.Fatalf("items = %v, want %v", got, tt.wantIDs)
			}
			for _, it := range items {
				if want, ok := tt.scoreFor[it.ID]; ok && it.Score != want {
					t.Errorf("item %d score = %v, want %v", it.ID, it.Score, want)
				}
			}
		})
	}
}

func TestFanout_RequestDeadline(t *testing.T) {
	fast := &stubSource{name: "fast", items: []*core.Item{scored(7, 1)}}
	slow := &stubSource{name: "slow", delay: time.Second, items: []*core.Item{scored(8, 1)}}

	for _, failFast := range []bool{false, true} {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		f := &Fanout{Sources: []Source{fast, slow}, FailFast: failFast}
		items, err := f.Recall(ctx, &core.RecommendContext{})
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("failFast=%v: err = %v, want deadline exceeded", failFast, err)
		}
		if items != nil {
			t.Errorf("failFast=%v: partial items %v", failFast, ids(items))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Fanout{Sources: []Source{slow}}).Recall(ctx, &core.RecommendContext{}); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled: err = %v", err)
	}
}

func TestTopN(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, core.DefaultTopN},
		{-3, 0},
		{5, 5},
		{core.DefaultTopN, core.DefaultTopN},
		{100, core.DefaultTopN},
	}
	for _, tt := range tests {
		if got := topN(tt.in); got != tt.want {
			t.Errorf("topN(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
