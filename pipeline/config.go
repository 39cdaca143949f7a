package pipeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config 是 Pipeline 的配置结构（YAML）。
type Config struct {
	Name  string       `yaml:"name" json:"name"`
	Nodes []NodeConfig `yaml:"nodes" json:"nodes"`
}

// NodeConfig 是单个 Node 的配置。
type NodeConfig struct {
	Type   string         `yaml:"type" json:"type"`     // recall.cluster / filter / rerank.topn 等
	Config map[string]any `yaml:"config" json:"config"` // Node 特定配置
}

// LoadFromYAML 从 YAML 文件加载 Pipeline 配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML 解析 YAML 格式的 Pipeline 配置。
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// Build 根据配置构建 Pipeline。
func (c *Config) Build(factory *NodeFactory) (*Pipeline, error) {
	nodes := make([]Node, 0, len(c.Nodes))
	for _, nc := range c.Nodes {
		node, err := factory.Build(nc.Type, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("build node %s: %w", nc.Type, err)
		}
		nodes = append(nodes, node)
	}
	return &Pipeline{Name: c.Name, Nodes: nodes}, nil
}

// NodeBuilder 根据 config 构建 Node。
type NodeBuilder func(config map[string]any) (Node, error)

// NodeFactory 用于根据配置构建 Node 实例。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{
		builders: make(map[string]NodeBuilder),
	}
}

// Register 注册 Node 构建器。
func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	if nodeType == "" || builder == nil {
		return
	}
	f.builders[nodeType] = builder
}

// Build 根据类型和配置构建 Node。
func (f *NodeFactory) Build(nodeType string, config map[string]any) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type %q (supported: %v)", nodeType, f.SupportedTypes())
	}
	return builder(config)
}

// SupportedTypes 返回已注册的 Node 类型（排序），用于错误提示与校验。
func (f *NodeFactory) SupportedTypes() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate 校验配置中所有 node 类型均已注册。
func (f *NodeFactory) Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	for _, nc := range cfg.Nodes {
		if _, ok := f.builders[nc.Type]; !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, f.SupportedTypes())
		}
	}
	return nil
}
