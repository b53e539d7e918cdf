package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supernova/api/internal/agents"
	"supernova/api/internal/app"
	"supernova/api/internal/authpw"
	"supernova/api/internal/backend"
	"supernova/api/internal/config"
	"supernova/api/internal/diary"
	"supernova/api/internal/export"
	"supernova/api/internal/governance"
	"supernova/api/internal/logging"
	"supernova/api/internal/music"
	"supernova/api/internal/pages"
	"supernova/api/internal/relay"
	"supernova/api/internal/rfc"
	"supernova/api/internal/routes"
	"supernova/api/internal/search"
	"supernova/api/internal/session"
	"supernova/api/internal/social"
	"supernova/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.DebugPrints)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ensureDataDir(cfg.DatabaseURL); err != nil {
		logger.Fatal("create data dir", zap.Error(err))
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if _, err := store.EnsureDatabaseExists(ctx, db, cfg.AdminPassword); err != nil {
		logger.Fatal("database setup failed", zap.Error(err))
	}
	harmonizers := store.NewHarmonizerStore(db)

	var sessions session.Store = session.NewMemoryStore()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Info("using redis session store")
	}

	var backendClient *backend.Client
	if cfg.BackendURL != "" {
		backendClient = backend.NewClient(cfg.BackendURL, nil)
	}

	sqlSearch := search.NewSQLSearch(harmonizers)
	var primary search.Searcher
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		search.Reindex(ctx, meiliClient, sqlSearch, logger)
		primary = meiliClient
	}
	searchAdapter := search.NewAdapter(cfg.UseRealBackend, search.NewService(primary, sqlSearch, logger))

	gov := governance.NewService()
	registry := routes.NewRegistry()
	gov.RegisterRoutes(registry)
	agents.NewRuntime(agents.DefaultCatalog).RegisterRoutes(registry)
	social.NewService(harmonizers).RegisterRoutes(registry)
	searchAdapter.RegisterRoutes(registry)
	var musicBackend music.Backend
	if backendClient != nil {
		musicBackend = backendClient
	}
	music.NewService(cfg.UseRealBackend && backendClient != nil, musicBackend).RegisterRoutes(registry)
	dispatcher := routes.NewDispatcher(registry, cfg.DispatchWorkers, cfg.DispatchQueueSize, logger)

	hub := relay.NewHub(relay.DefaultQueueSize, logger)

	if len(cfg.PagesDirs) > 0 {
		created, err := pages.EnsurePages(app.Navigation, cfg.PagesDirs[0])
		if err != nil {
			logger.Warn("provision page placeholders", zap.Error(err))
		} else if len(created) > 0 {
			logger.Info("created page placeholders", zap.Strings("files", created))
		}
		for _, dir := range cfg.PagesDirs {
			for key, names := range pages.CaseCollisions(dir) {
				logger.Warn("page files differ only by case", zap.String("dir", dir), zap.String("slug", key), zap.Strings("files", names))
			}
		}
	}

	archive, err := diary.NewArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		logger.Warn("diary archive disabled", zap.Error(err))
		archive = nil
	}

	deps := app.Deps{
		DB:         harmonizers,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Governance: gov,
		Search:     searchAdapter,
		Auth:       authpw.NewService(harmonizers),
		RFCs:       rfc.New(cfg.RFCDir),
		Diary:      diary.NewExporter(export.NewService(), archive, logger),
		Hub:        hub,
		Logger:     logger,
	}
	if backendClient != nil {
		deps.Backend = backendClient
	}
	service := app.New(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return dispatcher.Run(groupCtx) })
	group.Go(func() error { return hub.Run(groupCtx) })
	group.Go(func() error {
		logger.Info("superNova API listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// ensureDataDir creates the parent directory of a sqlite database file.
func ensureDataDir(databaseURL string) error {
	path, ok := strings.CutPrefix(strings.TrimSpace(databaseURL), "sqlite://")
	if !ok {
		return nil
	}
	path, _, _ = strings.Cut(path, "?")
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
