package session

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewSessionSetsThemeBeforeRender(t *testing.T) {
	s := New("sess_1")
	if got := s.GetString(KeyTheme, ""); got != ThemeLight {
		t.Fatalf("expected light theme, got %q", got)
	}
}

func TestNormalizeResetsInvalidTheme(t *testing.T) {
	s := FromValues("sess_1", map[string]any{KeyTheme: "solarized"})
	if got := s.GetString(KeyTheme, ""); got != ThemeLight {
		t.Fatalf("expected light theme after normalize, got %q", got)
	}
}

func TestToggleThemeStaysInDomain(t *testing.T) {
	s := New("sess_1")
	want := []string{ThemeDark, ThemeLight, ThemeDark, ThemeLight}
	for i, expected := range want {
		if got := s.ToggleTheme(); got != expected {
			t.Fatalf("toggle %d: got %q, want %q", i, got, expected)
		}
		if got := s.GetString(KeyTheme, ""); got != ThemeLight && got != ThemeDark {
			t.Fatalf("theme left domain: %q", got)
		}
	}
}

func TestEnsureActiveUserDefaultsToGuest(t *testing.T) {
	s := New("sess_1")
	if got := s.EnsureActiveUser(); got != GuestUser {
		t.Fatalf("expected guest, got %q", got)
	}
	s.Set(KeyActiveUser, "taha")
	if got := s.EnsureActiveUser(); got != "taha" {
		t.Fatalf("expected taha, got %q", got)
	}
}

func TestSetDefaultKeepsExisting(t *testing.T) {
	s := New("sess_1")
	if got := s.SetDefault(KeyBetaMode, true); got != true {
		t.Fatalf("expected default stored, got %v", got)
	}
	if got := s.SetDefault(KeyBetaMode, false); got != true {
		t.Fatalf("expected existing value kept, got %v", got)
	}
}

func TestSetStoresJSONShape(t *testing.T) {
	s := New("sess_1")
	type decision struct {
		Approved bool `json:"approved"`
		Score    int  `json:"score"`
	}
	s.Set(KeyDecision, decision{Approved: true, Score: 82})
	got, ok := s.Get(KeyDecision, nil).(map[string]any)
	if !ok {
		t.Fatalf("expected map shape, got %T", s.Get(KeyDecision, nil))
	}
	if diff := cmp.Diff(map[string]any{"approved": true, "score": float64(82)}, got); diff != "" {
		t.Fatalf("decision mismatch (-want +got):\n%s", diff)
	}

	var decoded decision
	if ok, err := s.Decode(KeyDecision, &decoded); !ok || err != nil {
		t.Fatalf("Decode() = %v, %v", ok, err)
	}
	if decoded.Score != 82 || !decoded.Approved {
		t.Fatalf("unexpected decoded decision %+v", decoded)
	}
}

func TestRecentSearchesBoundedDedupedMostRecentLast(t *testing.T) {
	s := New("sess_1")
	for i := 0; i < 8; i++ {
		s.AddRecentSearch(fmt.Sprintf("q%d", i))
	}
	got := s.AddRecentSearch("q4")
	// q0 and q1 fell off the bound; q4 moved to the end.
	want := []string{"q2", "q3", "q5", "q6", "q7", "q4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("recent searches mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, s.GetStrings(KeyRecentSearches)); diff != "" {
		t.Fatalf("stored searches mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentSearchesIgnoresBlank(t *testing.T) {
	s := New("sess_1")
	s.AddRecentSearch("alpha")
	got := s.AddRecentSearch("   ")
	if diff := cmp.Diff([]string{"alpha"}, got); diff != "" {
		t.Fatalf("blank query changed searches (-want +got):\n%s", diff)
	}
}

func TestNormalizeTrimsLegacySearchList(t *testing.T) {
	s := FromValues("sess_1", map[string]any{
		KeyRecentSearches: []any{"a", "b", "a", "c", "d", "e", "f", "g"},
	})
	want := []string{"b", "c", "d", "e", "f", "g"}
	if diff := cmp.Diff(want, s.GetStrings(KeyRecentSearches)); diff != "" {
		t.Fatalf("normalized searches mismatch (-want +got):\n%s", diff)
	}
}
