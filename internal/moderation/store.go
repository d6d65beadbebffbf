package moderation

import (
	"sync"
	"time"

	"github.com/C4boose/hfconvo/internal/role"
)

// 记录种类。
const (
	KindMute = "mute"
	KindBan  = "ban"
	KindKick = "kick"
)

// DefaultReason 未填写理由时的占位文案。
const DefaultReason = "No reason provided"

// KickDurationMinutes 踢出固定时长，不可配置。
const KickDurationMinutes = 10

// Record 一条管制记录。ExpiresAt 为 nil 表示永久（仅封禁允许）。
type Record struct {
	Kind       string     `json:"kind"`
	Subject    string     `json:"subject"`
	Issuer     string     `json:"issuer"`
	IssuerRole string     `json:"issuer_role"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Active 判断记录在 now 时刻是否仍然生效。
func (r Record) Active(now time.Time) bool {
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// Status 某用户当前的生效管制视图，过期计算只在这里做一次。
type Status struct {
	Muted      bool    `json:"muted"`
	Banned     bool    `json:"banned"`
	Kicked     bool    `json:"kicked"`
	ActiveMute *Record `json:"active_mute,omitempty"`
	ActiveBan  *Record `json:"active_ban,omitempty"`
	ActiveKick *Record `json:"active_kick,omitempty"`
}

// Evictor 在封禁/踢出生效时同步移除目标的在线会话，
// 使记录写入与在线剔除对调用方表现为一个原子动作。
type Evictor interface {
	Evict(username string)
}

// Caps 按签发者角色限定的禁言时长上限（分钟）。
type Caps struct {
	ModeratorMuteMinutes int
	AdminMuteMinutes     int
}

// Store 持有当前生效的禁言/封禁/踢出记录，每个用户每种记录至多一条，
// 新记录直接覆盖旧记录。
type Store struct {
	mu      sync.Mutex
	caps    Caps
	evictor Evictor
	records map[string]map[string]Record // kind -> subject -> record
}

func NewStore(caps Caps, evictor Evictor) *Store {
	return &Store{
		caps:    caps,
		evictor: evictor,
		records: map[string]map[string]Record{
			KindMute: {},
			KindBan:  {},
			KindKick: {},
		},
	}
}

func normalizeReason(reason string) string {
	if reason == "" {
		return DefaultReason
	}
	return reason
}

// Mute 禁言。时长必须 >= 1 分钟，且不得超过签发者角色的上限：
// 版主 24 小时、管理员 7 天。超限直接报错而不是静默截断。
func (s *Store) Mute(subject, issuer, issuerRole string, durationMinutes int, reason string, now time.Time) (Record, error) {
	if role.Rank(issuerRole) < role.Rank(role.Moderator) {
		return Record{}, ErrInsufficientRole
	}
	if durationMinutes < 1 {
		return Record{}, ErrInvalidDuration
	}
	limit := s.caps.ModeratorMuteMinutes
	if issuerRole == role.Admin {
		limit = s.caps.AdminMuteMinutes
	}
	if durationMinutes > limit {
		return Record{}, ErrDurationExceedsRoleLimit
	}
	expires := now.Add(time.Duration(durationMinutes) * time.Minute)
	rec := Record{
		Kind:       KindMute,
		Subject:    subject,
		Issuer:     issuer,
		IssuerRole: issuerRole,
		Reason:     normalizeReason(reason),
		CreatedAt:  now,
		ExpiresAt:  &expires,
	}
	s.mu.Lock()
	s.records[KindMute][subject] = rec
	s.mu.Unlock()
	return rec, nil
}

// Ban 封禁，仅管理员可用。durationMinutes 为 0 表示永久。
// 封禁即刻剔除目标的全部在线会话。
func (s *Store) Ban(subject, issuer, issuerRole string, durationMinutes int, reason string, now time.Time) (Record, error) {
	if issuerRole != role.Admin {
		return Record{}, ErrInsufficientRole
	}
	if durationMinutes < 0 {
		return Record{}, ErrInvalidDuration
	}
	var expires *time.Time
	if durationMinutes > 0 {
		t := now.Add(time.Duration(durationMinutes) * time.Minute)
		expires = &t
	}
	rec := Record{
		Kind:       KindBan,
		Subject:    subject,
		Issuer:     issuer,
		IssuerRole: issuerRole,
		Reason:     normalizeReason(reason),
		CreatedAt:  now,
		ExpiresAt:  expires,
	}
	s.mu.Lock()
	s.records[KindBan][subject] = rec
	if s.evictor != nil {
		s.evictor.Evict(subject)
	}
	s.mu.Unlock()
	return rec, nil
}

// Kick 踢出，版主及以上可用，固定 10 分钟，同样即刻剔除在线会话。
func (s *Store) Kick(subject, issuer, issuerRole string, now time.Time) (Record, error) {
	if role.Rank(issuerRole) < role.Rank(role.Moderator) {
		return Record{}, ErrInsufficientRole
	}
	expires := now.Add(KickDurationMinutes * time.Minute)
	rec := Record{
		Kind:       KindKick,
		Subject:    subject,
		Issuer:     issuer,
		IssuerRole: issuerRole,
		Reason:     normalizeReason(""),
		CreatedAt:  now,
		ExpiresAt:  &expires,
	}
	s.mu.Lock()
	s.records[KindKick][subject] = rec
	if s.evictor != nil {
		s.evictor.Evict(subject)
	}
	s.mu.Unlock()
	return rec, nil
}

// Unmute 解除禁言，对不存在的记录是无操作。
func (s *Store) Unmute(subject string) {
	s.mu.Lock()
	delete(s.records[KindMute], subject)
	s.mu.Unlock()
}

// Unban 解除封禁，对不存在的记录是无操作。
func (s *Store) Unban(subject string) {
	s.mu.Lock()
	delete(s.records[KindBan], subject)
	s.mu.Unlock()
}

// StatusOf 计算用户当前的生效状态，是过期判断的唯一入口。
func (s *Store) StatusOf(subject string, now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Status
	if rec, ok := s.records[KindMute][subject]; ok && rec.Active(now) {
		r := rec
		st.Muted = true
		st.ActiveMute = &r
	}
	if rec, ok := s.records[KindBan][subject]; ok && rec.Active(now) {
		r := rec
		st.Banned = true
		st.ActiveBan = &r
	}
	if rec, ok := s.records[KindKick][subject]; ok && rec.Active(now) {
		r := rec
		st.Kicked = true
		st.ActiveKick = &r
	}
	return st
}

// Purge 主动清理已过期的记录，返回清理条数。过期记录即使不清理
// 也不会生效，清理只是避免表无限增长。
func (s *Store) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, bySubject := range s.records {
		for subject, rec := range bySubject {
			if !rec.Active(now) {
				delete(bySubject, subject)
				removed++
			}
		}
	}
	return removed
}

// Load 启动时回放持久化的记录，过期的直接丢弃。
func (s *Store) Load(recs []Record, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		bySubject, ok := s.records[rec.Kind]
		if !ok || !rec.Active(now) {
			continue
		}
		bySubject[rec.Subject] = rec
	}
}

// CheckRoleChange 校验改角色操作的权限：仅管理员可改，且不能改自己。
func CheckRoleChange(subject, issuer, issuerRole string) error {
	if issuerRole != role.Admin {
		return ErrInsufficientRole
	}
	if subject == issuer {
		return ErrSelfRoleChange
	}
	return nil
}
