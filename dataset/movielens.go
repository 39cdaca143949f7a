// Package dataset 加载 MovieLens 100K 格式的数据文件。
//
//	u.data  user \t item \t rating \t timestamp
//	u.item  id | title | release_date | video_release_date | imdb_url | 19 个类型标记
//	u.user  id | age | sex | occupation | zip
//
// 文件中的用户与物品 ID 从 1 开始，加载后统一减 1，变成从 0 开始的稠密 ID。
// 文本按 Latin-1 解码。
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/store"
)

// 文件名
const (
	RatingsFile = "u.data"
	ItemsFile   = "u.item"
	UsersFile   = "u.user"
)

// Genres 是 u.item 中类型标记列的顺序。
var Genres = []string{
	"unknown", "Action", "Adventure", "Animation", "Children", "Comedy",
	"Crime", "Documentary", "Drama", "Fantasy", "Film-Noir", "Horror",
	"Musical", "Mystery", "Romance", "Sci-Fi", "Thriller", "War", "Western",
}

// Movie 是一部电影的元数据。
type Movie struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Year        string   `json:"year,omitempty"`
	URL         string   `json:"url,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// User 是一个用户的人口属性。
type User struct {
	ID         int    `json:"id"`
	Age        int    `json:"age"`
	Sex        string `json:"sex"`
	Occupation string `json:"occupation"`
	Zip        string `json:"zip"`
}

// Dataset 是加载后的完整数据集。
type Dataset struct {
	Ratings []core.Rating
	Movies  map[int]Movie
	Users   []User

	// NumUsers / NumItems 为出现过的最大 ID + 1
	NumUsers int
	NumItems int
}

// Title 返回电影标题，未知时返回 "#<id>"。
func (d *Dataset) Title(item int) string {
	if m, ok := d.Movies[item]; ok && m.Title != "" {
		return m.Title
	}
	return "#" + strconv.Itoa(item)
}

// Store 用数据集中的评分构建 RatingStore。
func (d *Dataset) Store() (*store.RatingStore, error) {
	return store.NewRatingStore(d.NumUsers, d.NumItems, d.Ratings)
}

// LoadDir 从目录加载 u.data（必需）、u.item 与 u.user（可选）。
func LoadDir(dir string) (*Dataset, error) {
	d := &Dataset{Movies: map[int]Movie{}}

	if err := withFile(filepath.Join(dir, RatingsFile), true, func(r io.Reader) error {
		ratings, err := LoadRatings(r)
		d.Ratings = ratings
		return err
	}); err != nil {
		return nil, err
	}
	if err := withFile(filepath.Join(dir, ItemsFile), false, func(r io.Reader) error {
		movies, err := LoadItems(r)
		for _, m := range movies {
			d.Movies[m.ID] = m
		}
		return err
	}); err != nil {
		return nil, err
	}
	if err := withFile(filepath.Join(dir, UsersFile), false, func(r io.Reader) error {
		users, err := LoadUsers(r)
		d.Users = users
		return err
	}); err != nil {
		return nil, err
	}

	for _, r := range d.Ratings {
		d.NumUsers = max(d.NumUsers, r.User+1)
		d.NumItems = max(d.NumItems, r.Item+1)
	}
	for id := range d.Movies {
		d.NumItems = max(d.NumItems, id+1)
	}
	for _, u := range d.Users {
		d.NumUsers = max(d.NumUsers, u.ID+1)
	}
	return d, nil
}

func withFile(path string, required bool, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		if !required && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadRatings 读取 u.data。
func LoadRatings(r io.Reader) ([]core.Rating, error) {
	var out []core.Rating
	err := scan(r, "\t", 4, func(line int, f []string) error {
		user, err := parseID(f[0])
		if err != nil {
			return lineError(line, "user", err)
		}
		item, err := parseID(f[1])
		if err != nil {
			return lineError(line, "item", err)
		}
		score, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return lineError(line, "rating", err)
		}
		if _, err := strconv.ParseInt(f[3], 10, 64); err != nil {
			return lineError(line, "timestamp", err)
		}
		out = append(out, core.Rating{User: user, Item: item, Score: score})
		return nil
	})
	return out, err
}

// LoadItems 读取 u.item。
func LoadItems(r io.Reader) ([]Movie, error) {
	var out []Movie
	err := scan(r, "|", 5, func(line int, f []string) error {
		id, err := parseID(f[0])
		if err != nil {
			return lineError(line, "movie id", err)
		}
		m := Movie{
			ID:          id,
			Title:       f[1],
			ReleaseDate: f[2],
			URL:         f[4],
		}
		if m.ReleaseDate != "" {
			parts := strings.Split(m.ReleaseDate, "-")
			m.Year = parts[len(parts)-1]
		}
		for i, flag := range f[5:] {
			if i < len(Genres) && flag == "1" {
				m.Genres = append(m.Genres, Genres[i])
			}
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

// LoadUsers 读取 u.user。
func LoadUsers(r io.Reader) ([]User, error) {
	var out []User
	err := scan(r, "|", 5, func(line int, f []string) error {
		id, err := parseID(f[0])
		if err != nil {
			return lineError(line, "user id", err)
		}
		age, err := strconv.Atoi(f[1])
		if err != nil {
			return lineError(line, "age", err)
		}
		out = append(out, User{ID: id, Age: age, Sex: f[2], Occupation: f[3], Zip: f[4]})
		return nil
	})
	return out, err
}

// scan 逐行切分，空行跳过；字段数少于 minFields 视为格式错误。
func scan(r io.Reader, sep string, minFields int, fn func(line int, fields []string) error) error {
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, sep)
		if len(fields) < minFields {
			return core.NewInvalidInputError(core.ModuleDataset,
				fmt.Sprintf("line %d: expected at least %d fields, got %d", line, minFields, len(fields)))
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if err := fn(line, fields); err != nil {
			return err
		}
	}
	return sc.Err()
}

// parseID 把文件中从 1 开始的 ID 转成从 0 开始。
func parseID(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("id %d must be >= 1", n)
	}
	return n - 1, nil
}

func lineError(line int, field string, err error) error {
	return core.NewInvalidInputError(core.ModuleDataset, fmt.Sprintf("line %d: bad %s: %v", line, field, err))
}
