package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/domain"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/service"
	"github.com/hdcongo61-sudo/hdmarket-search/pkg/log"
	"github.com/hdcongo61-sudo/hdmarket-search/pkg/response"
)

const searchFailedMessage = "search failed, try again"

// Handler handles HTTP requests for the search service.
type Handler struct {
	searchService service.SearchService
}

// NewHandler creates a new HTTP handler.
func NewHandler(searchService service.SearchService) *Handler {
	return &Handler{
		searchService: searchService,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/search", h.Search)
		api.GET("/cache/stats", h.CacheStats)
		api.DELETE("/cache", h.ClearCache)
	}
}

// Search handles a one-shot search. Every query parameter other than q is a filter.
func (h *Handler) Search(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		l.Warn().Err(err).Msg("invalid search request")
		response.BadRequest(c, err.Error())
		return
	}
	req.Filters = filtersFromQuery(c)

	result, err := h.searchService.Search(ctx, &req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			l.Debug().Str(log.FieldQuery, req.Query).Msg("search cancelled by client")
			c.Abort()
			return
		}
		l.Error().Err(err).Str(log.FieldQuery, req.Query).Msg("search failed")
		response.BadGateway(c, searchFailedMessage)
		return
	}

	response.Success(c, result)
}

// CacheStats reports what the result cache currently holds.
func (h *Handler) CacheStats(c *gin.Context) {
	response.Success(c, h.searchService.CacheStats(c.Request.Context()))
}

// ClearCache drops every cached search result, e.g. on logout.
func (h *Handler) ClearCache(c *gin.Context) {
	if !h.searchService.ClearCache(c.Request.Context()) {
		response.InternalError(c, "cache clear incomplete")
		return
	}
	response.Success(c, gin.H{"cleared": true})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func filtersFromQuery(c *gin.Context) domain.Filters {
	filters := domain.Filters{}
	for k, values := range c.Request.URL.Query() {
		if k == "q" || len(values) == 0 || values[0] == "" {
			continue
		}
		if len(values) == 1 {
			filters[k] = values[0]
			continue
		}
		filters[k] = values
	}
	return filters
}
