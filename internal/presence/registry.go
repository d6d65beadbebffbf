package presence

import (
	"sort"
	"sync"
	"time"
)

// Registry 跟踪各用户会话的最近心跳。同一用户名可能同时存在多个会话
// （多开标签页、迁移中的旧连接），对外视图始终按用户名去重。
type Registry struct {
	mu        sync.Mutex
	threshold time.Duration
	sessions  map[string]map[string]time.Time // username -> sessionID -> lastSeen
}

func NewRegistry(threshold time.Duration) *Registry {
	return &Registry{
		threshold: threshold,
		sessions:  make(map[string]map[string]time.Time),
	}
}

// Heartbeat 记录一次心跳，同名用户不同会话各自保留条目。
func (r *Registry) Heartbeat(username, sessionID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.sessions[username]
	if m == nil {
		m = make(map[string]time.Time)
		r.sessions[username] = m
	}
	m[sessionID] = now
}

// best 返回该用户名下最优会话：lastSeen 较大者胜出，持平时偏向携带
// 非空 sessionID 的条目（空 sessionID 通常是迁移遗留记录）。
func best(m map[string]time.Time) (string, time.Time, bool) {
	var (
		bestSID string
		bestTS  time.Time
		found   bool
	)
	for sid, ts := range m {
		if !found || ts.After(bestTS) || (ts.Equal(bestTS) && bestSID == "" && sid != "") {
			bestSID, bestTS, found = sid, ts, true
		}
	}
	return bestSID, bestTS, found
}

// Online 返回在线用户名集合：最优会话的心跳在阈值之内即算在线。
// 结果按字典序排序且不含重复用户名。
func (r *Registry) Online(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for username, m := range r.sessions {
		if _, ts, ok := best(m); ok && now.Sub(ts) < r.threshold {
			out = append(out, username)
		}
	}
	sort.Strings(out)
	return out
}

// IsOnline 判断单个用户是否在阈值内有过心跳。
func (r *Registry) IsOnline(username string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.sessions[username]
	if m == nil {
		return false
	}
	_, ts, ok := best(m)
	return ok && now.Sub(ts) < r.threshold
}

// Remove 显式断开某个会话，删除不存在的条目是无操作而非错误。
func (r *Registry) Remove(username, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.sessions[username]
	if m == nil {
		return
	}
	delete(m, sessionID)
	if len(m) == 0 {
		delete(r.sessions, username)
	}
}

// Evict 移除该用户的全部会话，封禁与踢出时使用。
func (r *Registry) Evict(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// Sweep 清理超过阈值的陈旧会话，返回删除的会话条目数。
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for username, m := range r.sessions {
		for sid, ts := range m {
			if now.Sub(ts) >= r.threshold {
				delete(m, sid)
				removed++
			}
		}
		if len(m) == 0 {
			delete(r.sessions, username)
		}
	}
	return removed
}
