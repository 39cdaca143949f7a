// Package config 负责服务级配置（Settings）与 Pipeline Node 的构建工厂。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// 结果缓存后端
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Settings 是服务的 YAML 配置。
//
// 示例：
//
//	data_dir: ./ml-100k
//	clusters: 10
//	seed: 0
//	top_n: 10
//	request_timeout: 2s
//	log:
//	  level: info
//	  format: json
//	cache:
//	  backend: redis
//	  addr: 127.0.0.1:6379
//	  ttl: 300
//	http:
//	  addr: :8080
//	pipeline:
//	  - type: filter
//	    config:
//	      filters:
//	        - type: expr
//	          expr: item.score >= 3.5
type Settings struct {
	DataDir        string        `yaml:"data_dir"`
	Clusters       int           `yaml:"clusters"`
	Seed           int64         `yaml:"seed"`
	TopN           int           `yaml:"top_n"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Log   LogSettings   `yaml:"log"`
	Cache CacheSettings `yaml:"cache"`
	HTTP  HTTPSettings  `yaml:"http"`

	// Pipeline 插在推荐源与排序截断之间的额外 Node，一般是过滤器
	Pipeline []pipeline.NodeConfig `yaml:"pipeline"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json / console
}

type CacheSettings struct {
	Backend string `yaml:"backend"` // none / memory / redis
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	TTL     int    `yaml:"ttl"` // 秒
	Prefix  string `yaml:"prefix"`
}

type HTTPSettings struct {
	Addr string `yaml:"addr"`
}

// Default 返回默认配置。
func Default() *Settings {
	return &Settings{
		DataDir:        "ml-100k",
		Clusters:       core.DefaultClusters,
		Seed:           core.DefaultSeed,
		TopN:           core.DefaultTopN,
		RequestTimeout: core.DefaultRequestTimeout,
		Log: LogSettings{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheSettings{
			Backend: CacheNone,
			TTL:     300,
			Prefix:  "rec",
		},
		HTTP: HTTPSettings{
			Addr: ":8080",
		},
	}
}

// Load 读取 YAML 文件，未出现的字段保留默认值。
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 并校验。
func Parse(data []byte) (*Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate 校验配置取值范围。
func (s *Settings) Validate() error {
	if s.Clusters < 1 {
		return core.NewInvalidInputError(core.ModuleService, fmt.Sprintf("clusters must be >= 1, got %d", s.Clusters))
	}
	if s.TopN < 1 || s.TopN > core.DefaultTopN {
		return core.NewInvalidInputError(core.ModuleService, fmt.Sprintf("top_n must be in [1, %d], got %d", core.DefaultTopN, s.TopN))
	}
	if s.RequestTimeout < 0 {
		return core.NewInvalidInputError(core.ModuleService, "request_timeout must not be negative")
	}
	switch s.Cache.Backend {
	case "", CacheNone, CacheMemory:
	case CacheRedis:
		if s.Cache.Addr == "" {
			return core.NewInvalidInputError(core.ModuleService, "cache.addr is required for redis backend")
		}
	default:
		return core.NewInvalidInputError(core.ModuleService, fmt.Sprintf("unknown cache backend %q", s.Cache.Backend))
	}
	for _, nc := range s.Pipeline {
		if nc.Type == "" {
			return core.NewInvalidInputError(core.ModuleService, "pipeline node type is empty")
		}
		// 推荐源由策略决定，pipeline 里只允许过滤与重排
		if strings.HasPrefix(nc.Type, string(pipeline.KindRecall)+".") {
			return core.NewInvalidInputError(core.ModuleService,
				fmt.Sprintf("pipeline node %s is a recall node; only filter and rerank nodes are allowed", nc.Type))
		}
	}
	if err := NewFactory(Deps{}).Validate(&pipeline.Config{Nodes: s.Pipeline}); err != nil {
		return core.NewInvalidInputError(core.ModuleService, err.Error())
	}
	return nil
}
