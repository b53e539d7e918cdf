package pages

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"supernova/api/internal/logging"
)

// Registry maps slugs to compiled pages. Lookups ignore case.
type Registry struct {
	mu     sync.RWMutex
	pages  map[string]Page
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{pages: make(map[string]Page), logger: logging.OrNop(logger)}
}

// Register adds page unless a page with the same case-folded slug exists,
// in which case it logs a warning, keeps the first and returns false.
func (r *Registry) Register(page Page) bool {
	key := strings.ToLower(strings.TrimSpace(page.Slug))
	if key == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pages[key]; ok {
		r.logger.Warn("page slug collides case-insensitively, keeping first",
			zap.String("kept", existing.Slug), zap.String("ignored", page.Slug))
		return false
	}
	r.pages[key] = page
	return true
}

func (r *Registry) Lookup(slug string) (Page, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	page, ok := r.pages[strings.ToLower(strings.TrimSpace(slug))]
	return page, ok
}

// Slugs returns the registered slugs, sorted.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pages))
	for _, page := range r.pages {
		out = append(out, page.Slug)
	}
	sort.Strings(out)
	return out
}
