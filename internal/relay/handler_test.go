package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func dialPeer(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// collect reads frames from client on one goroutine until the connection
// fails.
func collect(client *Client) <-chan string {
	frames := make(chan string, 16)
	go func() {
		defer close(frames)
		for {
			data, err := client.Receive()
			if err != nil {
				return
			}
			frames <- string(data)
		}
	}()
	return frames
}

func receiveWithin(frames <-chan string, d time.Duration) (string, bool) {
	select {
	case got, ok := <-frames:
		return got, ok
	case <-time.After(d):
		return "", false
	}
}

func TestRelayBroadcastOverWebSocket(t *testing.T) {
	hub, stop := startHub(t, 8)
	server := httptest.NewServer(hub)
	defer func() {
		server.Close()
		stop()
	}()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/video"

	a := dialPeer(t, url)
	b := dialPeer(t, url)
	c := dialPeer(t, url)
	waitFor(t, func() bool { return hub.Count() == 3 })
	fromA, fromB, fromC := collect(a), collect(b), collect(c)

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	for name, frames := range map[string]<-chan string{"B": fromB, "C": fromC} {
		got, ok := receiveWithin(frames, 2*time.Second)
		if !ok || got != "hello" {
			t.Fatalf("%s received %q (ok=%v), want hello", name, got, ok)
		}
	}
	if got, ok := receiveWithin(fromA, 150*time.Millisecond); ok {
		t.Fatalf("sender received its own frame %q", got)
	}

	// A disconnect removes only that peer.
	_ = b.Close()
	waitFor(t, func() bool { return hub.Count() == 2 })
	if err := c.Send([]byte(`{"type":"offer"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, ok := receiveWithin(fromA, 2*time.Second)
	if !ok || got != `{"type":"offer"}` {
		t.Fatalf("A received %q (ok=%v)", got, ok)
	}
}

func TestRelayRejectsPlainHTTP(t *testing.T) {
	hub, stop := startHub(t, 8)
	defer stop()
	server := httptest.NewServer(hub)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/ws/video")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 400 {
		t.Fatalf("expected upgrade failure status, got %d", resp.StatusCode)
	}
	if hub.Count() != 0 {
		t.Fatal("failed upgrade must not register a peer")
	}
}
