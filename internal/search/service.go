package search

import (
	"context"

	"go.uber.org/zap"

	"supernova/api/internal/logging"
	"supernova/api/internal/routes"
)

// UserIndexer pushes harmonizers into a search index.
type UserIndexer interface {
	Healthy() bool
	IndexUsers(users []UserRecord) error
}

// RecordLoader reads the records to index.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]UserRecord, error)
}

// Service is the facade that tries the primary searcher first and falls
// back to the database.
type Service struct {
	primary  Searcher
	fallback Searcher
	logger   *zap.Logger
}

// NewService creates a search service. primary may be nil if Meilisearch is
// not configured.
func NewService(primary, fallback Searcher, logger *zap.Logger) *Service {
	return &Service{primary: primary, fallback: fallback, logger: logging.OrNop(logger)}
}

func (s *Service) Search(ctx context.Context, q Query) []string {
	if s.primary != nil && s.primary.Healthy() {
		names, err := s.primary.Search(ctx, q)
		if err == nil {
			return nonNil(names)
		}
		s.logger.Warn("primary search failed, falling back", zap.Error(err))
	}
	if s.fallback == nil {
		return []string{}
	}
	names, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("fallback search failed", zap.Error(err))
		return []string{}
	}
	return nonNil(names)
}

// Reindex copies every harmonizer from loader into indexer. It is a no-op
// while the indexer is unhealthy.
func Reindex(ctx context.Context, indexer UserIndexer, loader RecordLoader, logger *zap.Logger) {
	if indexer == nil || loader == nil || !indexer.Healthy() {
		return
	}
	logger = logging.OrNop(logger)
	records, err := loader.LoadAllRecords(ctx)
	if err != nil {
		logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := indexer.IndexUsers(records); err != nil {
		logger.Warn("reindex harmonizers failed", zap.Error(err))
	}
}

// Adapter picks between the live search service and the static demo list.
type Adapter struct {
	live    bool
	service *Service
}

func NewAdapter(live bool, service *Service) *Adapter {
	return &Adapter{live: live, service: service}
}

func (a *Adapter) SearchUsers(ctx context.Context, text string) []string {
	if a == nil || !a.live || a.service == nil {
		return append([]string(nil), DemoUsers...)
	}
	return a.service.Search(ctx, Query{Text: text, Limit: 20})
}

func (a *Adapter) RegisterRoutes(registry *routes.Registry) {
	registry.RegisterOnce("search_users", func(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
		return map[string]any{"users": a.SearchUsers(ctx, routes.String(payload, "query"))}, nil
	}, "Search harmonizers by username", "social")
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
