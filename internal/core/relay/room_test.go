package relay

import (
	"encoding/binary"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case frame := <-ch:
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNone(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case frame := <-ch:
		t.Fatalf("expected no frame, got %v", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoom_JoinOrCreate_SharesGroupPerStream(t *testing.T) {
	room := NewRoom()
	s1 := NewSession(1, "stream-a")
	s2 := NewSession(2, "stream-a")

	g1 := room.JoinOrCreate("stream-a", s1)
	g2 := room.JoinOrCreate("stream-a", s2)

	if g1 != g2 {
		t.Fatal("expected same group for same stream id")
	}
	if s1.State() != StateJoined || s2.State() != StateJoined {
		t.Fatal("expected both sessions joined")
	}
	if g1.Size() != 2 {
		t.Fatalf("expected group size 2, got %d", g1.Size())
	}
}

func TestRoom_JoinOrCreate_BroadcastsOpenFrame(t *testing.T) {
	room := NewRoom()
	s1 := NewSession(1, "stream-a")
	room.JoinOrCreate("stream-a", s1)

	s2 := NewSession(2, "stream-a")
	room.JoinOrCreate("stream-a", s2)

	frame := recv(t, s1.Broadcast())
	if frame[0] != FrameTypeOpen {
		t.Fatalf("expected open frame type, got %d", frame[0])
	}
	from, ok := FrameFrom(frame)
	if !ok || from != 2 {
		t.Fatalf("expected open frame from user 2, got %d (ok=%v)", from, ok)
	}
}

func TestRoute_UnicastDeliversOnlyToTarget(t *testing.T) {
	room := NewRoom()
	s5 := NewSession(5, "stream-a")
	s7 := NewSession(7, "stream-a")
	other := NewSession(9, "stream-a")
	room.JoinOrCreate("stream-a", s5)
	room.JoinOrCreate("stream-a", s7)
	room.JoinOrCreate("stream-a", other)

	// drain the open-frame broadcasts so they don't interfere with assertions below
	for _, s := range []*Session{s5, other} {
		select {
		case <-s.Broadcast():
		default:
		}
	}

	payload := []byte{0x00, 0x00, 0x00, 0x05, 0xaa, 0xbb}
	Route(s7.currentGroup(), 7, payload)

	got := recv(t, s5.Inbox())
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x05, 0xaa, 0xbb}
	if string(got) != string(want) {
		t.Fatalf("unicast frame mismatch: got %v, want %v", got, want)
	}

	assertNone(t, other.Inbox())
}

func TestRoute_BroadcastExcludesNoOneAtBusLevel(t *testing.T) {
	room := NewRoom()
	s7 := NewSession(7, "stream-a")
	s9 := NewSession(9, "stream-a")
	room.JoinOrCreate("stream-a", s7)
	room.JoinOrCreate("stream-a", s9)

	// drain s9's open-frame notification from s7 not having joined yet is n/a;
	// drain any pending frames before the broadcast under test.
	drain(s7.Broadcast())
	drain(s9.Broadcast())

	payload := []byte{0x00, 0x00, 0x00, 0x07, 0xaa}
	Route(s7.currentGroup(), 7, payload)

	got := recv(t, s9.Broadcast())
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x07, 0xaa}
	if string(got) != string(want) {
		t.Fatalf("broadcast frame mismatch: got %v, want %v", got, want)
	}

	from, _ := FrameFrom(got)
	if from != 7 {
		t.Fatalf("expected from=7, got %d", from)
	}
}

func TestRoute_UnknownUnicastTargetDropped(t *testing.T) {
	room := NewRoom()
	s1 := NewSession(1, "stream-a")
	room.JoinOrCreate("stream-a", s1)

	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, 404)
	Route(s1.currentGroup(), 1, payload) // should not panic, just drop

	assertNone(t, s1.Inbox())
}

func TestRoom_LeaveGroup_RemovesEmptyGroup(t *testing.T) {
	room := NewRoom()
	s1 := NewSession(1, "stream-a")
	room.JoinOrCreate("stream-a", s1)

	if room.GroupCount() != 1 {
		t.Fatalf("expected 1 group, got %d", room.GroupCount())
	}

	room.LeaveGroup(s1)

	if room.GroupCount() != 0 {
		t.Fatalf("expected group to be removed, got %d", room.GroupCount())
	}
	if s1.State() != StateClosed {
		t.Fatal("expected session closed after leaving")
	}
}

func TestRoom_LeaveGroup_KeepsGroupForRemainingMembers(t *testing.T) {
	room := NewRoom()
	s1 := NewSession(1, "stream-a")
	s2 := NewSession(2, "stream-a")
	room.JoinOrCreate("stream-a", s1)
	g := room.JoinOrCreate("stream-a", s2)

	room.LeaveGroup(s1)

	if room.GroupCount() != 1 {
		t.Fatalf("expected group to remain for remaining member, got %d", room.GroupCount())
	}
	if g.Size() != 1 {
		t.Fatalf("expected group size 1, got %d", g.Size())
	}
}

func drain(ch <-chan []byte) {
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
	}
}
