// Package similarity 计算两个用户在共同评分物品上的相似度。
//
// 只在共同物品上计算，而不是在补 0 的完整稀疏向量上计算：
// 补 0 会把“没评过”和“评了最低分”混为一谈，压低重叠较少的用户之间的相似度。
package similarity

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/rushteam/movierec/core"
)

// CommonItems 返回两个画像共同评分的物品（升序、无重复）。
// 画像按物品 ID 有序，做一次归并即可，复杂度 O(|a|+|b|)。
func CommonItems(a, b core.UserProfile) []int {
	ai, bi := a.Items(), b.Items()
	out := make([]int, 0, min(len(ai), len(bi)))
	i, j := 0, 0
	for i < len(ai) && j < len(bi) {
		switch {
		case ai[i] < bi[j]:
			i++
		case ai[i] > bi[j]:
			j++
		default:
			out = append(out, ai[i])
			i++
			j++
		}
	}
	return out
}

// project 将两个画像按共同物品升序投影为等长向量。
func project(a, b core.UserProfile) (va, vb []float64) {
	ai, as := a.Items(), a.Scores()
	bi, bs := b.Items(), b.Scores()
	i, j := 0, 0
	for i < len(ai) && j < len(bi) {
		switch {
		case ai[i] < bi[j]:
			i++
		case ai[i] > bi[j]:
			j++
		default:
			va = append(va, as[i])
			vb = append(vb, bs[j])
			i++
			j++
		}
	}
	return va, vb
}

// Cosine 返回 a、b 在共同物品上的余弦相似度，取值 [-1, 1]。
//
//   - 没有共同物品：返回 0（近邻推荐据此跳过该用户）
//   - 共同物品非空但任一向量范数为 0：返回 DEGENERATE_VECTOR
func Cosine(a, b core.UserProfile) (float64, error) {
	va, vb := project(a, b)
	if len(va) == 0 {
		return 0, nil
	}

	na := floats.Norm(va, 2)
	nb := floats.Norm(vb, 2)
	if na == 0 || nb == 0 {
		return 0, core.NewDegenerateVectorError(len(va))
	}

	sim := floats.Dot(va, vb) / (na * nb)
	// 浮点舍入可能略超出 [-1, 1]
	return math.Max(-1, math.Min(1, sim)), nil
}

// Between 从评分源读取两个用户画像并计算余弦相似度。
func Between(src core.RatingSource, u, v int) (float64, error) {
	pu, err := src.Profile(u)
	if err != nil {
		return 0, err
	}
	pv, err := src.Profile(v)
	if err != nil {
		return 0, err
	}
	return Cosine(pu, pv)
}
