package pages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"supernova/api/internal/session"
)

func newFrame() *Frame {
	return &Frame{Ctx: context.Background(), Session: session.New("s1"), Canvas: NewCanvas()}
}

func texts(elements []Element) string {
	var parts []string
	for _, e := range elements {
		parts = append(parts, string(e.Kind)+":"+e.Label+e.Text)
	}
	return strings.Join(parts, "\n")
}

func TestLoaderComingSoonFallback(t *testing.T) {
	loader := NewLoader(NewRegistry(nil), []string{t.TempDir()}, nil)
	frame := newFrame()

	result := loader.Load(frame, "Ghost")
	if result.Source != SourceFallback || result.Failed {
		t.Fatalf("unexpected result %+v", result)
	}
	elements := frame.Canvas.Elements()
	if len(elements) == 0 || elements[0].Kind != KindInfo || !strings.Contains(elements[0].Text, "Ghost") || !strings.Contains(elements[0].Text, "Coming Soon") {
		t.Fatalf("expected coming soon notice for Ghost, got:\n%s", texts(elements))
	}

	tools := loader.DevTools()
	if tools.Slugs == nil || tools.Collisions == nil || len(tools.Dirs) != 1 {
		t.Fatalf("dev tools must render even on fallback: %+v", tools)
	}
}

func TestLoaderPrefersRenderOverMain(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(Page{
		Slug:   "feed",
		Render: func(f *Frame) error { f.Canvas.Markdown("render"); return nil },
		Main:   func(f *Frame) error { f.Canvas.Markdown("main"); return nil },
	})
	registry.Register(Page{Slug: "legacy", Main: func(f *Frame) error { f.Canvas.Markdown("main"); return nil }})
	registry.Register(Page{Slug: "empty"})
	loader := NewLoader(registry, nil, nil)

	cases := []struct {
		slug   string
		want   string
		failed bool
	}{
		{slug: "FEED", want: "markdown:render"},
		{slug: "legacy", want: "markdown:main"},
		{slug: "empty", want: "error:" + ErrNoRenderEntry.Error() + ": empty", failed: true},
	}
	for _, tc := range cases {
		t.Run(tc.slug, func(t *testing.T) {
			frame := newFrame()
			result := loader.Load(frame, tc.slug)
			if result.Source != SourceRegistry || result.Failed != tc.failed {
				t.Fatalf("unexpected result %+v", result)
			}
			if got := texts(frame.Canvas.Elements()[:1]); got != tc.want {
				t.Fatalf("first element = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLoaderCatchesPanicsAndErrors(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(Page{Slug: "boom", Render: func(f *Frame) error {
		f.Canvas.Markdown("before")
		panic("kaboom")
	}})
	registry.Register(Page{Slug: "fails", Render: func(*Frame) error { return errors.New("backend down") }})
	loader := NewLoader(registry, nil, nil)

	frame := newFrame()
	frame.Canvas.Markdown("header")
	result := loader.Load(frame, "boom")
	frame.Canvas.Markdown("footer")
	if !result.Failed {
		t.Fatal("expected panic to mark the result failed")
	}
	elements := frame.Canvas.Elements()
	kinds := make([]Kind, 0, len(elements))
	for _, e := range elements {
		kinds = append(kinds, e.Kind)
	}
	if diff := cmp.Diff([]Kind{KindMarkdown, KindMarkdown, KindError, KindCode, KindMarkdown}, kinds); diff != "" {
		t.Fatalf("element kinds mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(elements[2].Text, "kaboom") || !strings.Contains(elements[3].Text, "goroutine") {
		t.Fatalf("expected message and stack trace, got:\n%s", texts(elements))
	}

	frame = newFrame()
	if result := loader.Load(frame, "fails"); !result.Failed {
		t.Fatal("expected error to mark the result failed")
	}
	if !strings.Contains(frame.Canvas.Elements()[0].Text, "backend down") {
		t.Fatalf("unexpected elements:\n%s", texts(frame.Canvas.Elements()))
	}
}

func TestLoaderCandidateDirectories(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(second, "about.md"), "# About second")
	writeFile(t, filepath.Join(first, "About.md"), "# About first")
	writeFile(t, filepath.Join(second, "faq.md"), "# FAQ")

	registry := NewRegistry(nil)
	registry.Register(Page{Slug: "faq", Render: func(f *Frame) error { f.Canvas.Markdown("compiled faq"); return nil }})
	loader := NewLoader(registry, []string{first, second}, nil)

	frame := newFrame()
	result := loader.Load(frame, "ABOUT")
	if result.Source != SourceFile || result.Path != filepath.Join(first, "About.md") {
		t.Fatalf("expected first directory hit, got %+v", result)
	}
	if got := frame.Canvas.Elements()[0].Text; got != "# About first" {
		t.Fatalf("unexpected markdown %q", got)
	}

	frame = newFrame()
	if result := loader.Load(frame, "faq"); result.Source != SourceRegistry {
		t.Fatalf("compiled registry must win over files, got %+v", result)
	}
}

func TestLoaderRendersFileVerbatim(t *testing.T) {
	dir := t.TempDir()
	content := "# Quorum\n\nTurnout hit 100% and %d stays literal."
	writeFile(t, filepath.Join(dir, "quorum.md"), content)

	frame := newFrame()
	result := NewLoader(NewRegistry(nil), []string{dir}, nil).Load(frame, "quorum")
	if result.Source != SourceFile {
		t.Fatalf("expected file source, got %+v", result)
	}
	if got := frame.Canvas.Elements()[0].Text; got != content {
		t.Fatalf("markdown = %q, want %q", got, content)
	}
}

func TestLoaderCaseDuplicatesInOneDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Notes.md"), "upper")
	writeFile(t, filepath.Join(dir, "notes.md"), "lower")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) < 2 {
		t.Skip("filesystem is case-insensitive")
	}

	loader := NewLoader(NewRegistry(nil), []string{dir}, nil)
	frame := newFrame()
	result := loader.Load(frame, "notes")
	if result.Path != filepath.Join(dir, "Notes.md") {
		t.Fatalf("expected first sorted match, got %+v", result)
	}
	if diff := cmp.Diff(map[string][]string{"notes.md": {"Notes.md", "notes.md"}}, CaseCollisions(dir)); diff != "" {
		t.Fatalf("collisions mismatch (-want +got):\n%s", diff)
	}
	if got := loader.DevTools().Collisions["notes.md"]; len(got) != 2 {
		t.Fatalf("dev tools collisions = %v", got)
	}
}

func TestRegistryKeepsFirstOnCaseCollision(t *testing.T) {
	registry := NewRegistry(nil)
	if !registry.Register(Page{Slug: "Feed", Render: func(f *Frame) error { f.Canvas.Markdown("first"); return nil }}) {
		t.Fatal("first registration should succeed")
	}
	if registry.Register(Page{Slug: "feed", Render: func(f *Frame) error { f.Canvas.Markdown("second"); return nil }}) {
		t.Fatal("colliding registration should be ignored")
	}
	page, ok := registry.Lookup("FEED")
	if !ok {
		t.Fatal("expected case-insensitive lookup")
	}
	frame := newFrame()
	_ = page.Render(frame)
	if frame.Canvas.Elements()[0].Text != "first" {
		t.Fatal("expected first page to be kept")
	}
	if diff := cmp.Diff([]string{"Feed"}, registry.Slugs()); diff != "" {
		t.Fatalf("slugs mismatch (-want +got):\n%s", diff)
	}
}

func TestNavigator(t *testing.T) {
	nav := NewNavigator(map[string]string{"Voting": "voting", "Feed": "feed", "Agents": "agents"}, "")
	if diff := cmp.Diff([]string{"Agents", "Feed", "Voting"}, nav.Labels()); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}

	sess := session.New("s1")
	if got := nav.Active(sess); got != "Agents" {
		t.Fatalf("absent selection should reset to first label, got %q", got)
	}
	if err := nav.Select(sess, "Voting"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := nav.Active(sess); got != "Voting" {
		t.Fatalf("Active() = %q, want Voting", got)
	}
	sess.Set(session.KeyActivePage, "Ghost")
	if got := nav.Active(sess); got != "Agents" || sess.GetString(session.KeyActivePage, "") != "Agents" {
		t.Fatalf("unknown selection should reset, got %q", got)
	}
	if err := nav.Select(sess, "Ghost"); err == nil {
		t.Fatal("expected unknown label to be rejected")
	}
}

func TestEnsurePagesIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pages")
	mapping := map[string]string{"Feed": "feed", "Video Chat": "video_chat"}

	created, err := EnsurePages(mapping, dir)
	if err != nil {
		t.Fatalf("EnsurePages() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 placeholders, got %v", created)
	}
	before := snapshotDir(t, dir)

	created, err = EnsurePages(mapping, dir)
	if err != nil {
		t.Fatalf("second EnsurePages() error = %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("second run created %v", created)
	}
	if diff := cmp.Diff(before, snapshotDir(t, dir)); diff != "" {
		t.Fatalf("directory changed on second run (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(before["video_chat.md"], "# Video Chat") {
		t.Fatalf("unexpected placeholder %q", before["video_chat.md"])
	}
}

func TestEnsurePagesRespectsExistingCase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "FEED.md"), "custom")
	created, err := EnsurePages(map[string]string{"Feed": "feed"}, dir)
	if err != nil || len(created) != 0 {
		t.Fatalf("EnsurePages() = %v, %v", created, err)
	}
}

func TestTitleCaseAndSlugify(t *testing.T) {
	cases := map[string]string{"ghost": "Ghost", "video_chat": "Video Chat", "resonance-MUSIC": "Resonance Music", "": ""}
	for input, want := range cases {
		if got := TitleCase(input); got != want {
			t.Fatalf("TitleCase(%q) = %q, want %q", input, got, want)
		}
	}
	if got := Slugify(" Video  Chat "); got != "video_chat" {
		t.Fatalf("Slugify() = %q", got)
	}
}

func TestFrameDegradedMode(t *testing.T) {
	frame := newFrame()
	if frame.RequireDispatcher() {
		t.Fatal("nil dispatcher must be degraded")
	}
	if _, ok := frame.Guard("list_proposals", nil); ok {
		t.Fatal("guarded call without dispatcher must fail")
	}
	elements := frame.Canvas.Elements()
	if len(elements) != 2 || elements[0].Kind != KindWarning || elements[1].Kind != KindError {
		t.Fatalf("unexpected elements:\n%s", texts(elements))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func snapshotDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	out := map[string]string{}
	for _, entry := range entries {
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		out[entry.Name()] = string(raw)
	}
	return out
}
