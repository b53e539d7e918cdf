package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func startHub(t *testing.T, queueSize int) (*Hub, func()) {
	t.Helper()
	hub := NewHub(queueSize, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = hub.Run(ctx)
	}()
	waitFor(t, hub.Running)
	return hub, func() {
		cancel()
		wg.Wait()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func drain(p *Peer) [][]byte {
	var out [][]byte
	for {
		select {
		case data, ok := <-p.Outbound():
			if !ok {
				return out
			}
			out = append(out, data)
		default:
			return out
		}
	}
}

func TestHubFansOutToEveryoneButSender(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub, stop := startHub(t, 8)
	defer stop()

	a, b, c := NewPeer(8), NewPeer(8), NewPeer(8)
	for _, p := range []*Peer{a, b, c} {
		if !hub.Register(p) {
			t.Fatal("Register() returned false on a running hub")
		}
	}
	hub.Broadcast(a, []byte("hello"))
	hub.Broadcast(b, []byte("from-b"))
	if hub.Count() != 3 {
		t.Fatalf("Count() = %d", hub.Count())
	}

	if got := drain(a); len(got) != 1 || string(got[0]) != "from-b" {
		t.Fatalf("A received %q", got)
	}
	if got := drain(b); len(got) != 1 || string(got[0]) != "hello" {
		t.Fatalf("B received %q", got)
	}
	if got := drain(c); len(got) != 2 || string(got[0]) != "hello" || string(got[1]) != "from-b" {
		t.Fatalf("C received %q", got)
	}
}

func TestHubPreservesPerSenderOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub, stop := startHub(t, 128)
	defer stop()

	sender, receiver := NewPeer(128), NewPeer(128)
	hub.Register(sender)
	hub.Register(receiver)
	for i := 0; i < 100; i++ {
		hub.Broadcast(sender, []byte{byte(i)})
	}
	hub.Count()
	got := drain(receiver)
	if len(got) != 100 {
		t.Fatalf("received %d frames, want 100", len(got))
	}
	for i, data := range got {
		if data[0] != byte(i) {
			t.Fatalf("frame %d out of order: %d", i, data[0])
		}
	}
}

func TestHubDropsPeerWithFullQueue(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub, stop := startHub(t, 1)
	defer stop()

	sender, slow, fast := NewPeer(1), NewPeer(1), NewPeer(4)
	hub.Register(sender)
	hub.Register(slow)
	hub.Register(fast)

	hub.Broadcast(sender, []byte("one"))
	if got := <-fast.Outbound(); string(got) != "one" {
		t.Fatalf("fast peer received %q", got)
	}
	hub.Broadcast(sender, []byte("two"))

	waitFor(t, func() bool { return hub.Count() == 2 })
	if got := drain(slow); len(got) != 1 || string(got[0]) != "one" {
		t.Fatalf("slow peer should keep its queued frame, got %q", got)
	}
	if _, ok := <-slow.Outbound(); ok {
		t.Fatal("dropped peer's queue should be closed")
	}
	if got := <-fast.Outbound(); string(got) != "two" {
		t.Fatalf("fast peer received %q", got)
	}
}

func TestHubIgnoresUnknownPeers(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub, stop := startHub(t, 4)
	defer stop()

	member, stranger := NewPeer(4), NewPeer(4)
	hub.Register(member)
	hub.Broadcast(stranger, []byte("spoof"))
	hub.Unregister(stranger)
	hub.Unregister(member)
	hub.Unregister(member)

	if hub.Count() != 0 {
		t.Fatalf("Count() = %d", hub.Count())
	}
	if got := drain(member); len(got) != 0 {
		t.Fatalf("member received %q", got)
	}
}

func TestHubStopClosesQueues(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub, stop := startHub(t, 4)

	peer := NewPeer(4)
	hub.Register(peer)
	stop()

	if _, ok := <-peer.Outbound(); ok {
		t.Fatal("expected queue to be closed on stop")
	}
	if hub.Running() {
		t.Fatal("hub should report stopped")
	}
	if hub.Register(NewPeer(1)) {
		t.Fatal("Register() after stop should return false")
	}
	hub.Broadcast(peer, []byte("late"))
	hub.Unregister(peer)
	if hub.Count() != 0 {
		t.Fatal("Count() after stop should be 0")
	}
}
