package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/cache"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/handler"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/kvstore"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/repository"
	"github.com/hdcongo61-sudo/hdmarket-search/internal/service"
	pkglog "github.com/hdcongo61-sudo/hdmarket-search/pkg/log"
)

const (
	backendHTTP          = "http"
	backendElasticsearch = "elasticsearch"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "hdmarket-search",
	})
	logger := pkglog.L()

	// Initialize key-value store
	store, err := kvstore.New(cfg.Store, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open key-value store")
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Str("namespace", cfg.Store.Namespace).Msg("key-value store ready")

	// Initialize result cache
	resultCache := cache.NewSearchResultCache(store, cfg.Cache)
	defer resultCache.Dispose()

	// Initialize repository
	searchRepo, err := newSearchRepository(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str(pkglog.FieldBackend, cfg.Search.Backend).Msg("failed to create search backend")
	}
	logger.Info().Str(pkglog.FieldBackend, cfg.Search.Backend).Msg("search backend ready")

	// Initialize service and handlers
	searchService := service.NewSearchService(searchRepo, resultCache)
	defer searchService.Close()
	httpHandler := handler.NewHandler(searchService)
	wsHandler := handler.NewWSHandler(searchRepo, resultCache, cfg.Orchestrator, cfg.WebSocket)

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("hdmarket-search starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	wsHandler.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("hdmarket-search stopped")
}

func newSearchRepository(cfg *config.Config) (repository.SearchRepository, error) {
	switch cfg.Search.Backend {
	case backendHTTP, "":
		return repository.NewHTTPSearchRepository(cfg.Search), nil

	case backendElasticsearch:
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
		}

		// Verify ES connection
		res, err := esClient.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
		}
		res.Body.Close()

		return repository.NewESSearchRepository(esClient, cfg.Elasticsearch), nil

	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Search.Backend)
	}
}
