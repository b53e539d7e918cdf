// Package session holds per-viewer state and the stores that persist it.
package session

import (
	"encoding/json"
	"strings"
	"sync"
)

// Recognized keys.
const (
	KeyActiveUser       = "active_user"
	KeyActivePage       = "active_page"
	KeyTheme            = "theme"
	KeyConversations    = "conversations"
	KeyChatHistory      = "chat_history"
	KeyProposalsCache   = "proposals_cache"
	KeyVotesCache       = "votes_cache"
	KeyAgentList        = "agent_list"
	KeyDiary            = "diary"
	KeyNotifications    = "notifications"
	KeyBetaMode         = "beta_mode"
	KeyRecentSearches   = "recent_searches"
	KeyProfileData      = "profile_data"
	KeyProfileFollowers = "profile_followers"
	KeyProfileFollowing = "profile_following"
	KeyDecision         = "decision"
	KeyRunHistory       = "run_history"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	GuestUser         = "guest"
	MaxRecentSearches = 6
)

// Session is one viewer's key/value state. Values are kept in their JSON
// shape (map[string]any, []any, string, float64, bool, nil) so that every
// store round-trips them identically.
type Session struct {
	ID string

	mu     sync.Mutex
	values map[string]any
}

// New returns an empty, normalized session.
func New(id string) *Session {
	return FromValues(id, nil)
}

// FromValues rebuilds a session from a stored snapshot and normalizes it.
func FromValues(id string, values map[string]any) *Session {
	s := &Session{ID: id, values: make(map[string]any, len(values))}
	for key, value := range values {
		s.values[key] = value
	}
	s.Normalize()
	return s
}

// Normalize enforces the session invariants: a valid theme, the mapping
// shape for conversations and a bounded recent search list.
func (s *Session) Normalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	theme, _ := s.values[KeyTheme].(string)
	if theme != ThemeLight && theme != ThemeDark {
		s.values[KeyTheme] = ThemeLight
	}
	if upgraded, ok := upgradeConversations(s.values[KeyConversations]); ok {
		s.values[KeyConversations] = upgraded
	}
	if raw, ok := s.values[KeyRecentSearches]; ok {
		s.values[KeyRecentSearches] = toAnySlice(boundedSearches(stringSlice(raw), ""))
	}
}

func (s *Session) Get(key string, fallback any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return fallback
	}
	return value
}

// Set stores value under key in its JSON shape. Values that cannot be
// encoded are kept as given.
func (s *Session) Set(key string, value any) {
	normalized := jsonShape(value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = normalized
}

// SetDefault stores value only when key is absent and returns the value
// now held under key.
func (s *Session) SetDefault(key string, value any) any {
	normalized := jsonShape(value)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.values[key]; ok {
		return existing
	}
	s.values[key] = normalized
	return normalized
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *Session) GetString(key, fallback string) string {
	if value, ok := s.Get(key, nil).(string); ok {
		return value
	}
	return fallback
}

func (s *Session) GetStrings(key string) []string {
	return stringSlice(s.Get(key, nil))
}

// Decode copies the value under key into target. It reports false when the
// key is absent.
func (s *Session) Decode(key string, target any) (bool, error) {
	value := s.Get(key, nil)
	if value == nil {
		return false, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return true, err
	}
	return true, json.Unmarshal(raw, target)
}

// Snapshot returns a copy of all values.
func (s *Session) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for key, value := range s.values {
		out[key] = value
	}
	return out
}

// EnsureActiveUser returns the active user, defaulting it to "guest".
func (s *Session) EnsureActiveUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, _ := s.values[KeyActiveUser].(string)
	if strings.TrimSpace(user) == "" {
		user = GuestUser
		s.values[KeyActiveUser] = user
	}
	return user
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Session) ToggleTheme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := ThemeDark
	if current, _ := s.values[KeyTheme].(string); current == ThemeDark {
		next = ThemeLight
	}
	s.values[KeyTheme] = next
	return next
}

// AddRecentSearch records query as the most recent search.
func (s *Session) AddRecentSearch(query string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	searches := boundedSearches(stringSlice(s.values[KeyRecentSearches]), query)
	s.values[KeyRecentSearches] = toAnySlice(searches)
	return searches
}

// UpgradeConversations converts legacy conversation shapes in place.
func (s *Session) UpgradeConversations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if upgraded, ok := upgradeConversations(s.values[KeyConversations]); ok {
		s.values[KeyConversations] = upgraded
	}
}

func boundedSearches(existing []string, query string) []string {
	out := make([]string, 0, len(existing)+1)
	seen := map[string]bool{}
	query = strings.TrimSpace(query)
	for _, item := range existing {
		item = strings.TrimSpace(item)
		if item == "" || item == query || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	if query != "" {
		out = append(out, query)
	}
	if len(out) > MaxRecentSearches {
		out = out[len(out)-MaxRecentSearches:]
	}
	return out
}

func jsonShape(value any) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}

func stringSlice(value any) []string {
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if text, ok := item.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}
