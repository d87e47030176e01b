package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/cache"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/repository"
)

type fakeService struct {
	lastReq  *domain.SearchRequest
	resp     *domain.SearchResponse
	err      error
	stats    cache.Stats
	clearOK  bool
	clearCnt int
}

func (s *fakeService) Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func (s *fakeService) CacheStats(context.Context) cache.Stats { return s.stats }

func (s *fakeService) ClearCache(context.Context) bool {
	s.clearCnt++
	return s.clearOK
}

func (s *fakeService) Close() {}

func newRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func doRequest(r http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	r.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHandler_Search(t *testing.T) {
	svc := &fakeService{resp: &domain.SearchResponse{
		Query:   "phone",
		Key:     `phone:{"city":"Lomé"}`,
		Cached:  true,
		Results: domain.SearchResults{Products: []domain.Product{{ID: "p1", Title: "Tecno"}}},
	}}
	r := newRouter(svc)

	rec := doRequest(r, http.MethodGet, "/api/v1/search?q=phone&city=Lom%C3%A9&brand=&color=red&color=blue")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode(t, rec)
	assert.True(t, env.Success)
	var resp domain.SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, "p1", resp.Results.Products[0].ID)

	require.NotNil(t, svc.lastReq)
	assert.Equal(t, "phone", svc.lastReq.Query)
	assert.Equal(t, domain.Filters{"city": "Lomé", "color": []string{"red", "blue"}}, svc.lastReq.Filters)
}

func TestHandler_SearchErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "missing query", target: "/api/v1/search", wantCode: http.StatusBadRequest, wantErr: "BAD_REQUEST"},
		{name: "upstream failure", target: "/api/v1/search?q=phone", err: fmt.Errorf("%w: status 503", repository.ErrSearchFailed), wantCode: http.StatusBadGateway, wantErr: "SEARCH_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeService{err: tt.err})
			rec := doRequest(r, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

func TestHandler_CacheEndpoints(t *testing.T) {
	svc := &fakeService{stats: cache.Stats{Count: 2, TotalSizeBytes: 512, OldestEntryTimestamp: 1, NewestEntryTimestamp: 2}, clearOK: true}
	r := newRouter(svc)

	rec := doRequest(r, http.MethodGet, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &stats))
	assert.Equal(t, svc.stats, stats)

	rec = doRequest(r, http.MethodDelete, "/api/v1/cache")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.clearCnt)

	svc.clearOK = false
	rec = doRequest(r, http.MethodDelete, "/api/v1/cache")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	r := newRouter(&fakeService{})

	rec := doRequest(r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
