package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/store"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, s *Settings)
	}{
		{
			name: "defaults",
			yaml: "",
			check: func(t *testing.T, s *Settings) {
				if s.Clusters != core.DefaultClusters || s.TopN != core.DefaultTopN || s.RequestTimeout != core.DefaultRequestTimeout {
					t.Errorf("defaults = %+v", s)
				}
				if s.Cache.Backend != CacheNone {
					t.Errorf("cache backend = %q", s.Cache.Backend)
				}
			},
		},
		{
			name: "overrides",
			yaml: `
data_dir: /data/ml-100k
clusters: 20
seed: 7
top_n: 5
request_timeout: 250ms
log:
  level: debug
cache:
  backend: memory
  ttl: 60
pipeline:
  - type: filter
    config:
      filters:
        - type: expr
          expr: item.score >= 3.5
`,
			check: func(t *testing.T, s *Settings) {
				if s.DataDir != "/data/ml-100k" || s.Clusters != 20 || s.Seed != 7 || s.TopN != 5 {
					t.Errorf("settings = %+v", s)
				}
				if s.RequestTimeout != 250*time.Millisecond {
					t.Errorf("request_timeout = %v", s.RequestTimeout)
				}
				if s.Log.Level != "debug" || s.Log.Format != "json" {
					t.Errorf("log = %+v", s.Log)
				}
				if s.Cache.Backend != CacheMemory || s.Cache.TTL != 60 || s.Cache.Prefix != "rec" {
					t.Errorf("cache = %+v", s.Cache)
				}
				if len(s.Pipeline) != 1 || s.Pipeline[0].Type != "filter" {
					t.Errorf("pipeline = %+v", s.Pipeline)
				}
			},
		},
		{name: "zero clusters", yaml: "clusters: 0", wantErr: true},
		{name: "top_n too large", yaml: "top_n: 11", wantErr: true},
		{name: "unknown backend", yaml: "cache:\n  backend: memcached", wantErr: true},
		{name: "redis without addr", yaml: "cache:\n  backend: redis", wantErr: true},
		{name: "malformed", yaml: "clusters: [", wantErr: true},
		{name: "recall node in pipeline", yaml: "pipeline:\n  - type: recall.neighbor", wantErr: true},
		{name: "fanout in pipeline", yaml: "pipeline:\n  - type: recall.fanout", wantErr: true},
		{name: "unregistered node type", yaml: "pipeline:\n  - type: rank.lr", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", s)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			tt.check(t, s)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movierec.yaml")
	if err := os.WriteFile(path, []byte("clusters: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Clusters != 3 {
		t.Errorf("clusters = %d", s.Clusters)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOpenCache(t *testing.T) {
	s, err := OpenCache(context.Background(), CacheSettings{Backend: CacheNone})
	if err != nil || s != nil {
		t.Errorf("none = %v, %v", s, err)
	}
	s, err = OpenCache(context.Background(), CacheSettings{Backend: CacheMemory})
	if err != nil || s == nil || s.Name() != "memory" {
		t.Fatalf("memory = %v, %v", s, err)
	}
	s.Close()
	if _, err := OpenCache(context.Background(), CacheSettings{Backend: "bogus"}); !core.IsInvalidInput(err) {
		t.Errorf("bogus err = %v", err)
	}
}

type fixedClusters []int

func (c fixedClusters) ClusterOf(user int) (int, error) { return c[user], nil }
func (c fixedClusters) MembersOf(label int) ([]int, error) {
	var out []int
	for u, l := range c {
		if l == label {
			out = append(out, u)
		}
	}
	return out, nil
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	ratings, err := store.NewRatingStore(3, 6, []core.Rating{
		{User: 0, Item: 0, Score: 5},
		{User: 1, Item: 0, Score: 5}, {User: 1, Item: 1, Score: 4}, {User: 1, Item: 2, Score: 2},
		{User: 2, Item: 0, Score: 4}, {User: 2, Item: 3, Score: 5}, {User: 2, Item: 4, Score: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	return Deps{Ratings: ratings, Model: fixedClusters{0, 0, 0}, Store: store.NewMemoryStore()}
}

func TestNewFactory_Pipeline(t *testing.T) {
	deps := testDeps(t)
	defer deps.Store.Close()

	cfg, err := pipeline.ParseYAML([]byte(`
name: cluster
nodes:
  - type: recall.cluster
  - type: filter
    config:
      filters:
        - type: seen
        - type: blacklist
          item_ids: [3]
        - type: expr
          expr: item.score >= 2.0
  - type: rerank.sort
  - type: rerank.topn
    config:
      n: 2
`))
	if err != nil {
		t.Fatal(err)
	}
	f := NewFactory(deps)
	if err := f.Validate(cfg); err != nil {
		t.Fatal(err)
	}
	p, err := cfg.Build(f)
	if err != nil {
		t.Fatal(err)
	}

	items, err := p.Run(context.Background(), &core.RecommendContext{UserID: 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// 同簇求和：1→4, 2→2, 3→5, 4→1；去掉黑名单 3 与分数 < 2 的 4
	if got := core.ItemIDs(items); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("items = %v", got)
	}
}

func TestNewFactory_Fanout(t *testing.T) {
	deps := testDeps(t)
	defer deps.Store.Close()

	node, err := NewFactory(deps).Build("recall.fanout", map[string]any{
		"sources": []any{
			map[string]any{"type": "cluster", "top_n": 3},
			map[string]any{"type": "neighbor"},
		},
		"merge_strategy": "maxscore",
		"timeout":        "1s",
	})
	if err != nil {
		t.Fatal(err)
	}
	items, err := node.Process(context.Background(), &core.RecommendContext{UserID: 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := core.ItemIDs(items)
	slices.Sort(got)
	if !slices.Equal(got, []int{1, 2, 3, 4}) {
		t.Errorf("items = %v", got)
	}
}

func TestNewFactory_Errors(t *testing.T) {
	deps := testDeps(t)
	defer deps.Store.Close()
	f := NewFactory(deps)

	tests := []struct {
		name     string
		nodeType string
		config   map[string]any
		want     string
	}{
		{"unknown type", "rank.lr", nil, "unknown node type"},
		{"topn too large", "rerank.topn", map[string]any{"n": 20}, "rerank.topn"},
		{"unknown filter", "filter", map[string]any{"filters": []any{map[string]any{"type": "exposed"}}}, "unknown filter type"},
		{"bad expr", "filter", map[string]any{"filters": []any{map[string]any{"type": "expr", "expr": "item.score >"}}}, "expr filter"},
		{"fanout without sources", "recall.fanout", map[string]any{}, "sources"},
		{"bad merge", "recall.fanout", map[string]any{"sources": []any{}, "merge_strategy": "zip"}, "merge strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Build(tt.nodeType, tt.config)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}

	noModel := NewFactory(Deps{Ratings: deps.Ratings})
	if _, err := noModel.Build("recall.cluster", nil); err == nil {
		t.Error("recall.cluster without model should fail")
	}
	noStore := NewFactory(Deps{Ratings: deps.Ratings})
	if _, err := noStore.Build("filter", map[string]any{"filters": []any{map[string]any{"type": "user_block"}}}); err == nil {
		t.Error("user_block without store should fail")
	}
}
