package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/service"
)

// ItemResponse 是单个推荐物品。
type ItemResponse struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title,omitempty"`
}

// RecommendResponse 是推荐接口的响应。
type RecommendResponse struct {
	User     int              `json:"user"`
	Strategy service.Strategy `json:"strategy"`
	Items    []ItemResponse   `json:"items"`
	Reason   string           `json:"reason,omitempty"`
}

// ClusterResponse 是用户所属簇的响应。
type ClusterResponse struct {
	User    int `json:"user"`
	Cluster int `json:"cluster"`
}

// ErrorResponse 是错误响应。
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	strategy, err := service.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		s.respondError(w, err)
		return
	}

	res, err := s.rec.Recommend(r.Context(), strategy, user)
	if err != nil {
		s.respondError(w, err)
		return
	}

	resp := RecommendResponse{
		User:     res.User,
		Strategy: res.Strategy,
		Items:    make([]ItemResponse, 0, len(res.Items)),
		Reason:   res.Reason,
	}
	for i, id := range res.Items {
		item := ItemResponse{ID: id, Score: res.Scores[i]}
		if s.titles != nil {
			item.Title = s.titles(id)
		}
		resp.Items = append(resp.Items, item)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) cluster(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	label, err := s.rec.ClusterOf(user)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ClusterResponse{User: user, Cluster: label})
}

func (s *Server) userParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	user, err := strconv.Atoi(chi.URLParam(r, "user"))
	if err != nil {
		s.respondError(w, core.NewInvalidInputError(core.ModuleService, "user must be an integer"))
		return 0, false
	}
	return user, true
}

// statusOf 把领域错误映射为 HTTP 状态码。
func statusOf(err error) (int, string) {
	switch {
	case core.IsUnknownUser(err):
		return http.StatusNotFound, core.ErrorCodeUnknownUser
	case core.IsInvalidInput(err), core.IsInvalidClusterCount(err):
		return http.StatusBadRequest, core.ErrorCodeInvalidInput
	case core.IsModelNotFitted(err):
		return http.StatusServiceUnavailable, core.ErrorCodeModelNotFitted
	case core.IsUnavailable(err):
		return http.StatusServiceUnavailable, core.ErrorCodeUnavailable
	case service.IsDeadline(err):
		return http.StatusGatewayTimeout, "DEADLINE_EXCEEDED"
	}
	if de := core.GetDomainError(err); de != nil {
		return http.StatusInternalServerError, de.Code
	}
	return http.StatusInternalServerError, core.ErrorCodeInternalError
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("code", code).Msg("request failed")
	}
	msg := err.Error()
	var de *core.DomainError
	if errors.As(err, &de) {
		msg = de.Message
	}
	respondJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: msg}})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
