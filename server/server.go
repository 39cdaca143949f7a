// Package server 通过 HTTP 暴露推荐服务。
//
//	GET /v1/users/{user}/recommendations?strategy=cluster|neighbor
//	GET /v1/users/{user}/cluster
//	GET /healthz
//	GET /metrics
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/movierec/pkg/logging"
	"github.com/rushteam/movierec/service"
)

// TitleFunc 返回物品的展示标题，可为空。
type TitleFunc func(item int) string

// Server 是推荐服务的 HTTP 入口。
type Server struct {
	rec      *service.Recommender
	titles   TitleFunc
	gatherer prometheus.Gatherer
	log      zerolog.Logger
}

// Option Server 配置选项
type Option func(*Server)

// WithTitles 设置标题查询，响应中的 title 字段由它填充
func WithTitles(f TitleFunc) Option {
	return func(s *Server) {
		s.titles = f
	}
}

// WithGatherer 设置 /metrics 使用的指标来源，默认 prometheus.DefaultGatherer
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New 创建 Server。
func New(rec *service.Recommender, opts ...Option) *Server {
	s := &Server{
		rec:      rec,
		gatherer: prometheus.DefaultGatherer,
		log:      logging.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/users/{user}", func(r chi.Router) {
		r.Get("/recommendations", s.recommendations)
		r.Get("/cluster", s.cluster)
	})
	return r
}

// ListenAndServe 监听 addr，ctx 取消后优雅退出。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
