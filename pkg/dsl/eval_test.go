package dsl

import (
	"testing"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/utils"
)

func TestEvaluate(t *testing.T) {
	it := core.NewItem(42)
	it.Score = 4.2
	it.Meta["cluster"] = 3
	it.PutLabel("cf_metric", utils.Label{Value: "cosine", Source: "recall"})
	rctx := &core.RecommendContext{UserID: 7, Scene: "neighbor", Params: map[string]any{"min_score": 4.0}}

	tests := []struct {
		expr    string
		want    bool
		wantErr bool
	}{
		{expr: "", want: true},
		{expr: "item.score >= 4.0", want: true},
		{expr: "item.score > 4.5", want: false},
		{expr: "item.id == 42", want: true},
		{expr: `label.cf_metric == "cosine"`, want: true},
		{expr: "item.score >= rctx.params.min_score", want: true},
		{expr: `rctx.scene == "cluster"`, want: false},
		{expr: "rctx.user_id == 7 && has(item.meta.cluster)", want: true},
		{expr: "has(item.meta.missing)", want: false},
		{expr: "item.score", wantErr: true},
		{expr: "item.score >=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, it, rctx)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_Cached(t *testing.T) {
	a, err := Compile("item.score > 1.0")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile("item.score > 1.0")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("program not cached")
	}
}

func TestEvaluate_NilContext(t *testing.T) {
	got, err := Evaluate("item.id == 1", core.NewItem(1), nil)
	if err != nil || !got {
		t.Errorf("got %v, %v", got, err)
	}
}
