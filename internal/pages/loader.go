package pages

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"

	"go.uber.org/zap"

	"supernova/api/internal/logging"
)

// Source names where a render came from.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceFile     Source = "file"
	SourceFallback Source = "fallback"
)

var ErrNoRenderEntry = errors.New("page has no render entry")

// Result describes one resolution.
type Result struct {
	Slug   string `json:"slug"`
	Source Source `json:"source"`
	Path   string `json:"path,omitempty"`
	Failed bool   `json:"failed"`
}

// Loader resolves a slug against the compiled registry, then each
// candidate directory in order.
type Loader struct {
	registry *Registry
	dirs     []string
	logger   *zap.Logger
}

func NewLoader(registry *Registry, dirs []string, logger *zap.Logger) *Loader {
	return &Loader{registry: registry, dirs: append([]string(nil), dirs...), logger: logging.OrNop(logger)}
}

func (l *Loader) Dirs() []string {
	return append([]string(nil), l.dirs...)
}

// Load renders slug into frame. It never returns an error: failures are
// written into the canvas and flagged in the result.
func (l *Loader) Load(frame *Frame, slug string) Result {
	slug = strings.TrimSpace(slug)
	result := Result{Slug: slug}

	if page, ok := l.registry.Lookup(slug); ok {
		result.Source = SourceRegistry
		entry := page.entry()
		if entry == nil {
			result.Failed = true
			frame.Canvas.Error("%v: %s", ErrNoRenderEntry, page.Slug)
			comingSoon(frame.Canvas, slug)
			return result
		}
		if err := l.run(frame, page.Slug, entry); err != nil {
			result.Failed = true
		}
		return result
	}

	if path, ok := l.findFile(slug); ok {
		result.Source = SourceFile
		result.Path = path
		raw, err := os.ReadFile(path)
		if err != nil {
			result.Failed = true
			l.logger.Warn("read page file", zap.String("path", path), zap.Error(err))
			frame.Canvas.Error("Failed to load page %s: %v", slug, err)
			return result
		}
		frame.Canvas.Markdown("%s", raw)
		return result
	}

	result.Source = SourceFallback
	comingSoon(frame.Canvas, slug)
	return result
}

// run calls entry and converts an error or panic into an error element plus
// a stack trace. The enclosing render continues either way.
func (l *Loader) run(frame *Frame, slug string, entry RenderFunc) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			stack := string(debug.Stack())
			err = fmt.Errorf("page %s panicked: %v", slug, recovered)
			l.logger.Error("page panicked", zap.String("slug", slug), zap.Any("panic", recovered))
			frame.Canvas.Error("Failed to render %s: %v", slug, recovered)
			frame.Canvas.Code(stack, "text")
		}
	}()
	if err := entry(frame); err != nil {
		l.logger.Warn("page render failed", zap.String("slug", slug), zap.Error(err))
		frame.Canvas.Error("Failed to render %s: %v", slug, err)
		frame.Canvas.Code(fmt.Sprintf("%+v", err), "text")
		return err
	}
	return nil
}

// findFile searches each candidate directory for <slug>.md, ignoring case.
// Within one directory differently-cased duplicates log a warning and the
// first in sorted order wins.
func (l *Loader) findFile(slug string) (string, bool) {
	want := strings.ToLower(slug) + ".md"
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var matches []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.ToLower(entry.Name()) == want {
				matches = append(matches, entry.Name())
			}
		}
		if len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		if len(matches) > 1 {
			l.logger.Warn("multiple page files match slug, using first",
				zap.String("slug", slug), zap.String("dir", dir), zap.Strings("matches", matches))
		}
		return filepath.Join(dir, matches[0]), true
	}
	return "", false
}

func comingSoon(canvas *Canvas, slug string) {
	canvas.Info("%s: Coming Soon", TitleCase(slug))
	canvas.Markdown("This page is still being composed. Check back after the next release.")
}

// DevTools is the diagnostic section attached to every page response.
type DevTools struct {
	Slugs      []string            `json:"slugs"`
	Dirs       []string            `json:"dirs"`
	Collisions map[string][]string `json:"collisions"`
}

func (l *Loader) DevTools() DevTools {
	tools := DevTools{Slugs: l.registry.Slugs(), Dirs: l.Dirs(), Collisions: map[string][]string{}}
	for _, dir := range l.dirs {
		for key, names := range CaseCollisions(dir) {
			for _, name := range names {
				tools.Collisions[key] = append(tools.Collisions[key], filepath.Join(dir, name))
			}
		}
	}
	return tools
}
