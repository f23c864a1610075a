package forward

import (
	"sync"
	"testing"
	"time"

	"rillnet/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

func newTestPC(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("failed to create peer connection: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func newTestForwarder() *Forwarder {
	return NewForwarder(Config{
		StreamID: domain.StreamID("stream-1"),
		Logger:   nil,
	})
}

func TestForwarder_SingletonPublisher_ConcurrentSetPublish(t *testing.T) {
	f := newTestForwarder()
	f.logger = nil
	const n = 8
	var wg sync.WaitGroup
	successes := make([]bool, n)
	pcs := make([]*webrtc.PeerConnection, n)
	for i := 0; i < n; i++ {
		pcs[i] = newTestPC(t)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.SetPublish(pcs[i], domain.MediaInfo{})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one SetPublish to succeed, got %d", count)
	}
	if !f.PublishIsSome() {
		t.Fatalf("expected a publisher to be set")
	}
}

func TestForwarder_PubSem_CapsConcurrentPublishersAcrossForwarders(t *testing.T) {
	pubSem := make(chan struct{}, 1)
	f1 := NewForwarder(Config{StreamID: domain.StreamID("stream-1"), PubSem: pubSem})
	f2 := NewForwarder(Config{StreamID: domain.StreamID("stream-2"), PubSem: pubSem})

	pub1, err := f1.SetPublish(newTestPC(t), domain.MediaInfo{})
	if err != nil {
		t.Fatalf("expected first publisher to be admitted, got: %v", err)
	}
	if _, err := f2.SetPublish(newTestPC(t), domain.MediaInfo{}); err != domain.ErrStreamAlreadyExists {
		t.Fatalf("expected second publisher on a different stream to be rejected once pub_max is reached, got: %v", err)
	}

	if err := f1.RemovePublish(pub1.ID()); err != nil {
		t.Fatalf("RemovePublish failed: %v", err)
	}
	if _, err := f2.SetPublish(newTestPC(t), domain.MediaInfo{}); err != nil {
		t.Fatalf("expected slot to be released after RemovePublish, got: %v", err)
	}
}

func TestForwarder_RemovePublish_WrongOwnerFails(t *testing.T) {
	f := newTestForwarder()
	pub, err := f.SetPublish(newTestPC(t), domain.MediaInfo{})
	if err != nil {
		t.Fatalf("SetPublish failed: %v", err)
	}
	if err := f.RemovePublish("not-the-owner"); err != domain.ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.RemovePublish(pub.ID()); err != nil {
		t.Fatalf("expected owner removal to succeed, got %v", err)
	}
}

func TestForwarder_RemovePublish_NoPublisherFails(t *testing.T) {
	f := newTestForwarder()
	if err := f.RemovePublish("whatever"); err != domain.ErrNoPublisher {
		t.Fatalf("expected ErrNoPublisher, got %v", err)
	}
}

func TestForwarder_RemovePublish_ClearsTracksAtomically(t *testing.T) {
	f := newTestForwarder()
	pub, _ := f.SetPublish(newTestPC(t), domain.MediaInfo{})
	f.PublishTrackUp(domain.PublishedTrack{RID: "", Kind: "video"}, nil)
	if f.Tracks().Empty() {
		t.Fatalf("expected a track to be registered")
	}
	if err := f.RemovePublish(pub.ID()); err != nil {
		t.Fatalf("RemovePublish failed: %v", err)
	}
	if !f.Tracks().Empty() {
		t.Fatalf("expected tracks cleared after RemovePublish")
	}
}

func TestForwarder_NewSubscriber_NoPublisherFails(t *testing.T) {
	f := newTestForwarder()
	_, err := f.NewSubscriber(newTestPC(t), 1, 0)
	if err != domain.ErrNoPublisher {
		t.Fatalf("expected ErrNoPublisher, got %v", err)
	}
}

func TestForwarder_NewSubscriber_InvalidMediaRejected(t *testing.T) {
	f := newTestForwarder()
	f.SetPublish(newTestPC(t), domain.MediaInfo{})
	_, err := f.NewSubscriber(newTestPC(t), 2, 0)
	if err != domain.ErrInvalidMedia {
		t.Fatalf("expected ErrInvalidMedia, got %v", err)
	}
}

func TestForwarder_RemoveSubscribe_IdempotentRemoval(t *testing.T) {
	f := newTestForwarder()
	f.SetPublish(newTestPC(t), domain.MediaInfo{})
	sub, err := f.NewSubscriber(newTestPC(t), 1, 0)
	if err != nil {
		t.Fatalf("NewSubscriber failed: %v", err)
	}

	if err := f.RemoveSubscribe(sub.ID()); err != nil {
		t.Fatalf("first RemoveSubscribe should succeed, got %v", err)
	}
	if err := f.RemoveSubscribe(sub.ID()); err != domain.ErrSessionNotFound {
		t.Fatalf("second RemoveSubscribe should return ErrSessionNotFound, got %v", err)
	}
}

func TestForwarder_TimestampMonotonicity(t *testing.T) {
	f := newTestForwarder()
	pub, _ := f.SetPublish(newTestPC(t), domain.MediaInfo{})
	if f.PublishLeftAt() != 0 {
		t.Fatalf("expected publish_left_at == 0 while publisher present")
	}
	time.Sleep(2 * time.Millisecond)
	if err := f.RemovePublish(pub.ID()); err != nil {
		t.Fatalf("RemovePublish failed: %v", err)
	}
	info := f.Info()
	if info.PublishLeftAt < info.CreatedAt {
		t.Fatalf("publish_left_at (%d) must not precede created_at (%d)", info.PublishLeftAt, info.CreatedAt)
	}
}
