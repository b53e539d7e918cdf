package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"supernova/api/internal/routes"
	"supernova/api/internal/store"
)

type fakeSearcher struct {
	healthy bool
	names   []string
	err     error
	calls   int
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

func (f *fakeSearcher) Search(context.Context, Query) ([]string, error) {
	f.calls++
	return f.names, f.err
}

func TestAdapterDemoMode(t *testing.T) {
	primary := &fakeSearcher{healthy: true, names: []string{"admin"}}
	adapter := NewAdapter(false, NewService(primary, nil, nil))

	got := adapter.SearchUsers(context.Background(), "any")
	if diff := cmp.Diff([]string{"taha_gungor", "artist_dev"}, got); diff != "" {
		t.Fatalf("demo users mismatch (-want +got):\n%s", diff)
	}
	if primary.calls != 0 {
		t.Fatalf("demo mode must not query search, got %d calls", primary.calls)
	}

	got[0] = "mutated"
	if DemoUsers[0] != "taha_gungor" {
		t.Fatal("adapter leaked the demo slice")
	}
}

func TestServiceFallback(t *testing.T) {
	cases := []struct {
		name    string
		primary *fakeSearcher
		want    []string
	}{
		{name: "primary healthy", primary: &fakeSearcher{healthy: true, names: []string{"from_meili"}}, want: []string{"from_meili"}},
		{name: "primary unhealthy", primary: &fakeSearcher{healthy: false}, want: []string{"from_sql"}},
		{name: "primary error", primary: &fakeSearcher{healthy: true, err: errors.New("boom")}, want: []string{"from_sql"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := NewService(tc.primary, &fakeSearcher{healthy: true, names: []string{"from_sql"}}, nil)
			if diff := cmp.Diff(tc.want, service.Search(context.Background(), Query{Text: "x"})); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServiceNeverReturnsNil(t *testing.T) {
	service := NewService(nil, &fakeSearcher{healthy: true, err: errors.New("db down")}, nil)
	if got := service.Search(context.Background(), Query{Text: "x"}); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func openHarmonizers(t *testing.T) *store.HarmonizerStore {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := store.EnsureDatabaseExists(ctx, db, "pw"); err != nil {
		t.Fatalf("EnsureDatabaseExists() error = %v", err)
	}
	harmonizers := store.NewHarmonizerStore(db)
	for _, h := range []store.Harmonizer{
		{Username: "artist_dev", Email: "artist@example.com", Bio: "sound", IsActive: true},
		{Username: "Artemis", Email: "artemis@example.com", IsActive: true},
		{Username: "dormant_artist", Email: "dormant@example.com", IsActive: false},
	} {
		if err := harmonizers.Create(ctx, db, h); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	return harmonizers
}

func TestSQLSearchAndReindex(t *testing.T) {
	harmonizers := openHarmonizers(t)
	sqlSearch := NewSQLSearch(harmonizers)
	ctx := context.Background()

	adapter := NewAdapter(true, NewService(nil, sqlSearch, nil))
	if diff := cmp.Diff([]string{"Artemis", "artist_dev"}, adapter.SearchUsers(ctx, "ART")); diff != "" {
		t.Fatalf("live search mismatch (-want +got):\n%s", diff)
	}

	indexer := &fakeIndexer{healthy: true}
	Reindex(ctx, indexer, sqlSearch, nil)
	var names []string
	for _, record := range indexer.indexed {
		names = append(names, record.Username)
	}
	if diff := cmp.Diff([]string{"Artemis", "admin", "artist_dev"}, names); diff != "" {
		t.Fatalf("reindexed users mismatch (-want +got):\n%s", diff)
	}

	unhealthy := &fakeIndexer{}
	Reindex(ctx, unhealthy, sqlSearch, nil)
	if len(unhealthy.indexed) != 0 {
		t.Fatal("unhealthy indexer should be skipped")
	}
}

type fakeIndexer struct {
	healthy bool
	indexed []UserRecord
}

func (f *fakeIndexer) Healthy() bool { return f.healthy }

func (f *fakeIndexer) IndexUsers(users []UserRecord) error {
	f.indexed = append(f.indexed, users...)
	return nil
}

func TestSearchUsersRoute(t *testing.T) {
	registry := routes.NewRegistry()
	NewAdapter(false, nil).RegisterRoutes(registry)
	got, err := registry.Dispatch(context.Background(), "search_users", map[string]any{"query": "x"}, routes.Call{})
	if err != nil {
		t.Fatalf("search_users error = %v", err)
	}
	if diff := cmp.Diff(map[string]any{"users": []string{"taha_gungor", "artist_dev"}}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
