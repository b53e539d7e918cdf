// Package social serves the profile and follow routes over the harmonizers
// table. The follow graph itself lives in memory.
package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"supernova/api/internal/routes"
	"supernova/api/internal/session"
	"supernova/api/internal/store"
)

const Category = "social"

var ErrUserNotFound = errors.New("user not found")

// Directory is the slice of store.HarmonizerStore the social routes need.
type Directory interface {
	WithConn(ctx context.Context, fn func(store.Querier) error) error
	GetByUsername(ctx context.Context, q store.Querier, username string) (store.Harmonizer, error)
}

type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Bio       string    `json:"bio"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
}

type Service struct {
	dir Directory

	mu        sync.RWMutex
	following map[string]map[string]struct{}
}

func NewService(dir Directory) *Service {
	return &Service{dir: dir, following: make(map[string]map[string]struct{})}
}

// lookup resolves each username on one dedicated connection released before
// returning.
func (s *Service) lookup(ctx context.Context, usernames ...string) ([]store.Harmonizer, error) {
	out := make([]store.Harmonizer, 0, len(usernames))
	err := s.dir.WithConn(ctx, func(q store.Querier) error {
		for _, name := range usernames {
			h, err := s.dir.GetByUsername(ctx, q, name)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrUserNotFound, name)
			}
			if err != nil {
				return err
			}
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

func (s *Service) GetUser(ctx context.Context, username string) (Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Profile{}, routes.Invalid("username", "is required")
	}
	found, err := s.lookup(ctx, username)
	if err != nil {
		return Profile{}, err
	}
	h := found[0]
	return Profile{
		ID:        h.ID,
		Username:  h.Username,
		Bio:       h.Bio,
		IsAdmin:   h.IsAdmin,
		CreatedAt: h.CreatedAt,
		Followers: len(s.Followers(h.Username)),
		Following: len(s.Following(h.Username)),
	}, nil
}

// Followers lists who follows username, sorted.
func (s *Service) Followers(username string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []string{}
	for follower, targets := range s.following {
		if _, ok := targets[username]; ok {
			out = append(out, follower)
		}
	}
	sort.Strings(out)
	return out
}

// Following lists who username follows, sorted.
func (s *Service) Following(username string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.following[username]))
	for target := range s.following[username] {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// ToggleFollow follows target on behalf of current, or unfollows when the
// edge already exists. It returns "followed" or "unfollowed".
func (s *Service) ToggleFollow(ctx context.Context, current, target string) (string, error) {
	current = strings.TrimSpace(current)
	target = strings.TrimSpace(target)
	if current == "" || current == session.GuestUser {
		return "", routes.Invalid("current_user", "sign in to follow harmonizers")
	}
	if target == "" {
		return "", routes.Invalid("username", "is required")
	}
	if strings.EqualFold(current, target) {
		return "", routes.Invalid("username", "cannot follow yourself")
	}
	if _, err := s.lookup(ctx, target); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	targets := s.following[current]
	if _, ok := targets[target]; ok {
		delete(targets, target)
		return "unfollowed", nil
	}
	if targets == nil {
		targets = make(map[string]struct{})
		s.following[current] = targets
	}
	targets[target] = struct{}{}
	return "followed", nil
}

func (s *Service) RegisterRoutes(registry *routes.Registry) {
	registry.RegisterOnce("get_user", s.handleGetUser, "Fetch a harmonizer profile", Category)
	registry.RegisterOnce("get_followers", s.handleFollowers, "List followers of a harmonizer", Category)
	registry.RegisterOnce("get_following", s.handleFollowing, "List harmonizers someone follows", Category)
	registry.RegisterOnce("follow_user", s.handleFollow, "Follow or unfollow a harmonizer", Category)
}

func (s *Service) handleGetUser(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
	return s.GetUser(ctx, routes.String(payload, "username"))
}

func (s *Service) handleFollowers(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
	username := routes.String(payload, "username")
	if username == "" {
		return nil, routes.Invalid("username", "is required")
	}
	if _, err := s.lookup(ctx, username); err != nil {
		return nil, err
	}
	return map[string]any{"username": username, "followers": s.Followers(username)}, nil
}

func (s *Service) handleFollowing(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
	username := routes.String(payload, "username")
	if username == "" {
		return nil, routes.Invalid("username", "is required")
	}
	if _, err := s.lookup(ctx, username); err != nil {
		return nil, err
	}
	return map[string]any{"username": username, "following": s.Following(username)}, nil
}

func (s *Service) handleFollow(ctx context.Context, payload map[string]any, call routes.Call) (any, error) {
	status, err := s.ToggleFollow(ctx, call.CurrentUser, routes.String(payload, "username"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": status}, nil
}
