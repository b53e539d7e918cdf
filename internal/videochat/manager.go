// Package videochat tracks the participants of a call on the client side.
// Only explicit signal sends leave the process.
package videochat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"supernova/api/internal/util"
)

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrNoSignaler         = errors.New("no signaling connection")
	ErrNoAnalyzer         = errors.New("no frame analyzer")
)

type FaceBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// VideoStream is one participant's stream state.
type VideoStream struct {
	UserID             string   `json:"user_id"`
	TrackID            string   `json:"track_id"`
	TranslationOverlay string   `json:"translation_overlay"`
	OverlayLang        string   `json:"overlay_lang"`
	FaceBox            *FaceBox `json:"face_box,omitempty"`
}

// FrameMetadata is what analysis reports about one frame.
type FrameMetadata struct {
	Emotion string         `json:"emotion"`
	Lang    string         `json:"lang"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Analyzer inspects raw frames.
type Analyzer interface {
	Analyze(ctx context.Context, frame []byte) (FrameMetadata, error)
	DetectFace(ctx context.Context, frame []byte) (*FaceBox, error)
}

// Signaler sends a frame over the relay.
type Signaler interface {
	Send(data []byte) error
}

// Signal is the conventional JSON payload exchanged through the relay.
type Signal struct {
	Type    string         `json:"type"`
	From    string         `json:"from"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Manager struct {
	analyzer Analyzer
	signaler Signaler

	mu      sync.Mutex
	streams []VideoStream
}

func NewManager(analyzer Analyzer, signaler Signaler) *Manager {
	return &Manager{analyzer: analyzer, signaler: signaler}
}

// StartCall replaces the participant list with one stream per distinct
// user id.
func (m *Manager) StartCall(userIDs []string) []VideoStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(userIDs))
	m.streams = m.streams[:0]
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		m.streams = append(m.streams, VideoStream{UserID: id, TrackID: util.NewID("track")})
	}
	return m.snapshot()
}

func (m *Manager) EndCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = nil
}

// Streams returns a copy of the current participants.
func (m *Manager) Streams() []VideoStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Manager) snapshot() []VideoStream {
	out := make([]VideoStream, len(m.streams))
	for i, stream := range m.streams {
		if stream.FaceBox != nil {
			box := *stream.FaceBox
			stream.FaceBox = &box
		}
		out[i] = stream
	}
	return out
}

func (m *Manager) find(userID string) (*VideoStream, error) {
	for i := range m.streams {
		if m.streams[i].UserID == userID {
			return &m.streams[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, userID)
}

// UpdateTranslationOverlay sets the overlay text; last write wins.
func (m *Manager) UpdateTranslationOverlay(userID, text, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, err := m.find(userID)
	if err != nil {
		return err
	}
	stream.TranslationOverlay = text
	stream.OverlayLang = lang
	return nil
}

// TrackFace runs face detection on frame and stores the box.
func (m *Manager) TrackFace(ctx context.Context, userID string, frame []byte) (*FaceBox, error) {
	m.mu.Lock()
	if _, err := m.find(userID); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()
	if m.analyzer == nil {
		return nil, ErrNoAnalyzer
	}

	box, err := m.analyzer.DetectFace(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect face: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stream, err := m.find(userID)
	if err != nil {
		return nil, err
	}
	stream.FaceBox = box
	return box, nil
}

// AnalyzeFrame reports metadata for frame. It does not mutate the stream.
func (m *Manager) AnalyzeFrame(ctx context.Context, userID string, frame []byte) (FrameMetadata, error) {
	m.mu.Lock()
	_, err := m.find(userID)
	m.mu.Unlock()
	if err != nil {
		return FrameMetadata{}, err
	}
	if m.analyzer == nil {
		return FrameMetadata{}, ErrNoAnalyzer
	}
	meta, err := m.analyzer.Analyze(ctx, frame)
	if err != nil {
		return FrameMetadata{}, fmt.Errorf("analyze frame: %w", err)
	}
	return meta, nil
}

// SendSignal encodes a Signal and sends it over the relay.
func (m *Manager) SendSignal(signal Signal) error {
	if m.signaler == nil {
		return ErrNoSignaler
	}
	raw, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return m.signaler.Send(raw)
}
