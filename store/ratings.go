package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/movierec/core"
)

// 评分数据完整性错误（在摄入阶段拒绝，不进入算法核心）
var (
	ErrInvalidRating   = core.NewDomainError(core.ModuleRatings, core.ErrorCodeInvalidInput, "ratings: invalid rating")
	ErrDuplicateRating = core.NewDomainError(core.ModuleRatings, core.ErrorCodeDuplicateRating, "ratings: duplicate rating")
)

// RatingStore 是内存中的不可变评分快照，实现 core.RatingSource。
//
// 构造后只读：
//   - Profile / HasRating 可并发调用
//   - Matrix 首次调用时构建一次，之后复用同一份数据
type RatingStore struct {
	numUsers   int
	numItems   int
	numRatings int
	profiles   []core.UserProfile

	fingerprint uint64

	matrixOnce sync.Once
	matrix     *mat.Dense
}

var _ core.RatingSource = (*RatingStore)(nil)

// NewRatingStore 从评分三元组构建快照。
// 用户 / 物品 ID 必须落在 [0, numUsers) / [0, numItems)，同一 (user, item) 至多一条。
func NewRatingStore(numUsers, numItems int, ratings []core.Rating) (*RatingStore, error) {
	if numUsers < 0 || numItems < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidRating, numUsers, numItems)
	}

	perUser := make([]map[int]float64, numUsers)
	for i, r := range ratings {
		if r.User < 0 || r.User >= numUsers {
			return nil, fmt.Errorf("%w: rating %d has user %d outside [0, %d)", ErrInvalidRating, i, r.User, numUsers)
		}
		if r.Item < 0 || r.Item >= numItems {
			return nil, fmt.Errorf("%w: rating %d has item %d outside [0, %d)", ErrInvalidRating, i, r.Item, numItems)
		}
		if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
			return nil, fmt.Errorf("%w: rating %d has non-finite score", ErrInvalidRating, i)
		}
		if perUser[r.User] == nil {
			perUser[r.User] = make(map[int]float64)
		}
		if _, dup := perUser[r.User][r.Item]; dup {
			return nil, fmt.Errorf("%w: user %d item %d", ErrDuplicateRating, r.User, r.Item)
		}
		perUser[r.User][r.Item] = r.Score
	}

	profiles := make([]core.UserProfile, numUsers)
	for u := range profiles {
		profiles[u] = core.NewUserProfile(u, perUser[u])
	}

	return &RatingStore{
		numUsers:    numUsers,
		numItems:    numItems,
		numRatings:  len(ratings),
		profiles:    profiles,
		fingerprint: fingerprintOf(numUsers, numItems, profiles),
	}, nil
}

// fingerprintOf 按 用户、物品 升序对全部评分做 xxhash，与输入顺序无关。
func fingerprintOf(numUsers, numItems int, profiles []core.UserProfile) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(uint64(numUsers))
	put(uint64(numItems))
	for u, p := range profiles {
		for i := 0; i < p.Len(); i++ {
			item, score := p.At(i)
			put(uint64(u))
			put(uint64(item))
			put(math.Float64bits(score))
		}
	}
	return d.Sum64()
}

func (s *RatingStore) NumUsers() int   { return s.numUsers }
func (s *RatingStore) NumItems() int   { return s.numItems }
func (s *RatingStore) NumRatings() int { return s.numRatings }

// Fingerprint 返回评分内容的摘要，内容相同的快照在任何进程里摘要都相同。
func (s *RatingStore) Fingerprint() uint64 { return s.fingerprint }

// Profile 返回用户评分画像。
func (s *RatingStore) Profile(user int) (core.UserProfile, error) {
	if user < 0 || user >= s.numUsers {
		return core.UserProfile{}, core.NewUnknownUserError(user, s.numUsers)
	}
	return s.profiles[user], nil
}

// HasRating 判断用户是否评过该物品。
func (s *RatingStore) HasRating(user, item int) bool {
	if user < 0 || user >= s.numUsers {
		return false
	}
	return s.profiles[user].Has(item)
}

// Ratings 按 用户、物品 升序导出全部评分（用于快照持久化）。
func (s *RatingStore) Ratings() []core.Rating {
	out := make([]core.Rating, 0, s.numRatings)
	for u, p := range s.profiles {
		for i := 0; i < p.Len(); i++ {
			item, score := p.At(i)
			out = append(out, core.Rating{User: u, Item: item, Score: score})
		}
	}
	return out
}

// Matrix 返回 用户×物品 稠密矩阵，缺失评分填 0。
// 没有用户或没有物品时返回空矩阵（IsEmpty 为 true），k-means 会拒绝它。
// 注意：0 与“评了 0 分”在数值上不可区分，聚类阶段接受这一信息损失。
func (s *RatingStore) Matrix() *mat.Dense {
	s.matrixOnce.Do(func() {
		if s.numUsers == 0 || s.numItems == 0 {
			s.matrix = &mat.Dense{}
			return
		}
		m := mat.NewDense(s.numUsers, s.numItems, nil)
		for u, p := range s.profiles {
			for i := 0; i < p.Len(); i++ {
				item, score := p.At(i)
				m.Set(u, item, score)
			}
		}
		s.matrix = m
	})
	return s.matrix
}
