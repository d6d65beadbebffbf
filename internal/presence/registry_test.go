package presence

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const threshold = 30 * time.Second

func TestRegistry_HeartbeatAndOnline(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "s1", t0)

	online := r.Online(t0.Add(5 * time.Second))
	if len(online) != 1 || online[0] != "alice" {
		t.Fatalf("Online() = %v, want [alice]", online)
	}
}

func TestRegistry_OnlineExcludesStale(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "s1", t0)
	r.Heartbeat("bob", "s2", t0.Add(20*time.Second))

	online := r.Online(t0.Add(35 * time.Second))
	if len(online) != 1 || online[0] != "bob" {
		t.Errorf("Online() = %v, want [bob]", online)
	}
}

func TestRegistry_ThresholdBoundaryIsExclusive(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "s1", t0)

	if !r.IsOnline("alice", t0.Add(threshold-time.Millisecond)) {
		t.Error("IsOnline() just inside threshold = false, want true")
	}
	if r.IsOnline("alice", t0.Add(threshold)) {
		t.Error("IsOnline() exactly at threshold = true, want false")
	}
}

func TestRegistry_DedupAcrossSessions(t *testing.T) {
	// 同一用户任意多会话的任意心跳序列，Online 里该用户名至多出现一次。
	r := NewRegistry(threshold)
	for i := 0; i < 10; i++ {
		sid := string(rune('a' + i%3))
		r.Heartbeat("alice", sid, t0.Add(time.Duration(i)*time.Second))
	}
	r.Heartbeat("alice", "", t0.Add(11*time.Second))

	online := r.Online(t0.Add(12 * time.Second))
	count := 0
	for _, u := range online {
		if u == "alice" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Online() contains alice %d times, want exactly 1", count)
	}
}

func TestRegistry_ConflictPrefersNewerEntry(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "old", t0)
	r.Heartbeat("alice", "new", t0.Add(40*time.Second))

	// 旧会话已过期，但新会话把用户保持在线。
	if !r.IsOnline("alice", t0.Add(50*time.Second)) {
		t.Error("IsOnline() = false, want true: newest session should win")
	}
}

func TestRegistry_TiePrefersNonEmptySession(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "", t0)
	r.Heartbeat("alice", "s1", t0)

	m := r.sessions["alice"]
	sid, _, ok := best(m)
	if !ok || sid != "s1" {
		t.Errorf("best() session = %q, want s1 (non-empty wins ties)", sid)
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "s1", t0)

	r.Remove("alice", "s1")
	if r.IsOnline("alice", t0.Add(time.Second)) {
		t.Error("IsOnline() after Remove = true, want false")
	}
	// 删除不存在的会话是无操作，不应 panic 或出错。
	r.Remove("alice", "s1")
	r.Remove("ghost", "nope")
}

func TestRegistry_RemoveOnlyNamedSession(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "s1", t0)
	r.Heartbeat("alice", "s2", t0)

	r.Remove("alice", "s1")
	if !r.IsOnline("alice", t0.Add(time.Second)) {
		t.Error("IsOnline() = false, want true: other session still alive")
	}
}

func TestRegistry_Evict(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("bob", "s1", t0)
	r.Heartbeat("bob", "s2", t0)

	r.Evict("bob")
	if r.IsOnline("bob", t0.Add(time.Second)) {
		t.Error("IsOnline() after Evict = true, want false")
	}
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(threshold)
	r.Heartbeat("alice", "s1", t0)
	r.Heartbeat("bob", "s1", t0.Add(25*time.Second))

	removed := r.Sweep(t0.Add(40 * time.Second))
	if removed != 1 {
		t.Errorf("Sweep() removed = %d, want 1", removed)
	}
	if _, ok := r.sessions["alice"]; ok {
		t.Error("Sweep() left stale user in map")
	}
	if !r.IsOnline("bob", t0.Add(40*time.Second)) {
		t.Error("Sweep() removed a live session")
	}
}

func TestRegistry_OnlineSorted(t *testing.T) {
	r := NewRegistry(threshold)
	for _, u := range []string{"zoe", "alice", "mike"} {
		r.Heartbeat(u, "s", t0)
	}
	online := r.Online(t0.Add(time.Second))
	want := []string{"alice", "mike", "zoe"}
	if len(online) != len(want) {
		t.Fatalf("Online() = %v, want %v", online, want)
	}
	for i := range want {
		if online[i] != want[i] {
			t.Fatalf("Online() = %v, want %v", online, want)
		}
	}
}
