package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supernova/api/internal/config"
	"supernova/api/internal/relay"
	"supernova/api/internal/routes"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

type fakeBackend struct {
	url       string
	healthErr error
	status    map[string]any
}

func (f fakeBackend) BaseURL() string              { return f.url }
func (f fakeBackend) Health(context.Context) error { return f.healthErr }
func (f fakeBackend) Status(context.Context) (map[string]any, error) {
	return f.status, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AppEnv:        "development",
		SessionSecret: "test-secret",
		SessionTTL:    time.Hour,
		PagesDirs:     []string{t.TempDir()},
	}
}

// testClient drives the handler and replays the session cookie like a
// browser would.
type testClient struct {
	t       *testing.T
	handler http.Handler
	service *Service
	cookies []*http.Cookie
}

func newTestClient(t *testing.T, cfg config.Config, deps Deps) *testClient {
	t.Helper()
	svc := New(cfg, deps)
	return &testClient{t: t, handler: NewHTTPServer(svc, "*").Handler(), service: svc}
}

func (c *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	if issued := rr.Result().Cookies(); len(issued) > 0 {
		c.cookies = issued
	}
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func startDispatcher(t *testing.T, register ...func(*routes.Registry)) *routes.Dispatcher {
	t.Helper()
	registry := routes.NewRegistry()
	for _, fn := range register {
		fn(registry)
	}
	dispatcher := routes.NewDispatcher(registry, 2, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dispatcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return dispatcher
}

func startHub(t *testing.T) *relay.Hub {
	t.Helper()
	hub := relay.NewHub(relay.DefaultQueueSize, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	deadline := time.Now().Add(2 * time.Second)
	for !hub.Running() {
		if time.Now().After(deadline) {
			t.Fatal("hub did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub
}
