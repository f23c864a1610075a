package forward

import (
	"testing"

	"rillnet/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

func TestTrackRegistry_RIDOrdering(t *testing.T) {
	r := NewTrackRegistry()
	r.Add(domain.PublishedTrack{RID: "high", Kind: "video", SSRC: 3}, nil)
	r.Add(domain.PublishedTrack{RID: "", Kind: "audio", SSRC: 1}, nil)
	r.Add(domain.PublishedTrack{RID: "low", Kind: "video", SSRC: 2}, nil)
	r.Add(domain.PublishedTrack{RID: "low", Kind: "video", SSRC: 4}, nil)

	snap := r.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 tracks, got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].RID > snap[i].RID {
			t.Fatalf("tracks not in non-decreasing RID order: %v", snap)
		}
	}
	// duplicate RIDs keep insertion order (stable sort)
	if snap[2].SSRC != 2 || snap[3].SSRC != 4 {
		t.Fatalf("stable sort broke tie-break order among duplicate RIDs: %v", snap)
	}
}

func TestTrackRegistry_ClearIsAtomic(t *testing.T) {
	r := NewTrackRegistry()
	r.Add(domain.PublishedTrack{RID: "a", Kind: "video"}, nil)
	r.Add(domain.PublishedTrack{RID: "b", Kind: "video"}, nil)

	r.Clear()

	if !r.Empty() {
		t.Fatalf("expected registry empty after Clear")
	}
	if len(r.Snapshot()) != 0 {
		t.Fatalf("expected empty snapshot after Clear")
	}
}

func TestTrackRegistry_RemoteForRID_DefaultsToLowest(t *testing.T) {
	r := NewTrackRegistry()
	highTrack := &webrtc.TrackRemote{}
	lowTrack := &webrtc.TrackRemote{}
	r.Add(domain.PublishedTrack{RID: "high", Kind: "video"}, highTrack)
	r.Add(domain.PublishedTrack{RID: "low", Kind: "video"}, lowTrack)

	// "high" < "low" lexicographically, so it is the lowest-RID entry
	// and must be the one selected when rid is unspecified.
	got, ok := r.RemoteForRID("video", "")
	if !ok {
		t.Fatalf("expected a match for empty RID selection")
	}
	if got != highTrack {
		t.Fatalf("expected lowest-RID track to be selected, got a different track")
	}
}
