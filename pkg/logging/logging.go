// Package logging 提供基于 zerolog 的统一日志入口。
//
// 使用方式：
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("strategy", "cluster").Msg("recommend done")
//	log := logging.WithComponent("cluster")
//	log.Debug().Int("iter", n).Msg("lloyd step")
//
// 日志链必须以 Msg() 或 Send() 结尾，否则不会输出。
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config 是日志配置。
type Config struct {
	// Level: trace / debug / info / warn / error，默认 info
	Level string `yaml:"level" json:"level"`

	// Format: json / console，默认 json
	Format string `yaml:"format" json:"format"`

	// Caller 输出调用位置（有性能开销）
	Caller bool `yaml:"caller" json:"caller"`

	// Output 输出目标，默认 os.Stderr
	Output io.Writer `yaml:"-" json:"-"`
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Init 按配置重建全局 logger。可重复调用（测试中常用）。
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	l := ctx.Logger().Level(ParseLevel(cfg.Level))

	mu.Lock()
	logger = l
	mu.Unlock()
}

// ParseLevel 解析日志级别，无法识别时返回 info。
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger 返回全局 logger 的副本。
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithComponent 返回带 component 字段的子 logger。
func WithComponent(name string) zerolog.Logger {
	l := Logger()
	return l.With().Str("component", name).Logger()
}

// Nop 返回丢弃所有输出的 logger。
func Nop() zerolog.Logger { return zerolog.Nop() }

func Debug() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}
