package music

import (
	"context"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strings"

	"supernova/api/internal/routes"
)

const Category = "music"

// Backend is the slice of backend.Client the music routes proxy to.
type Backend interface {
	Post(ctx context.Context, path string, payload any) (map[string]any, error)
}

type Service struct {
	live    bool
	backend Backend
}

// NewService returns a service that proxies to backend when live is set and
// renders locally otherwise.
func NewService(live bool, backend Backend) *Service {
	return &Service{live: live, backend: backend}
}

func (s *Service) GenerateMIDI(ctx context.Context, profile string) (string, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", routes.Invalid("profile", "is required")
	}
	if s.live && s.backend != nil {
		out, err := s.backend.Post(ctx, "/generate-midi", map[string]any{"profile": profile})
		if err != nil {
			return "", fmt.Errorf("generate midi: %w", err)
		}
		encoded, _ := out["midi_base64"].(string)
		if encoded == "" {
			return "", fmt.Errorf("generate midi: backend response has no midi_base64")
		}
		return encoded, nil
	}
	return base64.StdEncoding.EncodeToString(RenderMIDI(profile)), nil
}

// ResonanceSummary proxies the backend summary, or derives a local one.
func (s *Service) ResonanceSummary(ctx context.Context, profile string) (map[string]any, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil, routes.Invalid("profile", "is required")
	}
	if s.live && s.backend != nil {
		out, err := s.backend.Post(ctx, "/resonance-summary", map[string]any{"name": profile})
		if err != nil {
			return nil, fmt.Errorf("resonance summary: %w", err)
		}
		return out, nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(profile))
	return map[string]any{
		"profile":   profile,
		"resonance": int(h.Sum32() % 101),
		"notes":     len(melody(profile)),
	}, nil
}

func (s *Service) RegisterRoutes(registry *routes.Registry) {
	registry.RegisterOnce("generate_midi", func(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
		encoded, err := s.GenerateMIDI(ctx, routes.String(payload, "profile"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"midi_base64": encoded}, nil
	}, "Generate a MIDI rendition of a profile", Category)
	registry.RegisterOnce("resonance_summary", func(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
		return s.ResonanceSummary(ctx, routes.String(payload, "profile"))
	}, "Summarize a profile's resonance", Category)
}
