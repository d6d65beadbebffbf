package bus

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/C4boose/hfconvo/internal/backoff"
	"github.com/C4boose/hfconvo/internal/clock"
	"github.com/C4boose/hfconvo/internal/metrics"
	"github.com/C4boose/hfconvo/internal/moderation"
	"github.com/C4boose/hfconvo/internal/presence"
	"github.com/C4boose/hfconvo/internal/retention"
	"github.com/C4boose/hfconvo/internal/role"
)

// Directory 用户名到角色的查询与更新。未知用户返回
// moderation.ErrUserNotFound，存储故障返回 moderation.ErrStoreUnavailable。
type Directory interface {
	LookupRole(username string) (string, error)
	SetRole(username, newRole string) error
}

// Archive 把消息与管制记录写透到持久存储，内存始终是权威状态，
// 写透失败只记日志不回滚。nil 实现表示纯内存运行。
type Archive interface {
	SaveModeration(rec moderation.Record) error
	DeleteModeration(kind, subject string) error
	SaveMessage(msg retention.Message) error
	DeleteMessagesBefore(t time.Time) error
}

// TypingEvent 打字提示，ExpiresAt 之后订阅方应自行丢弃。
type TypingEvent struct {
	Author    string    `json:"author"`
	At        time.Time `json:"at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresenceEvent 在线用户集合的快照。
type PresenceEvent struct {
	Online []string `json:"online"`
}

// ModerationEvent 一次管制动作的结果广播。
type ModerationEvent struct {
	Action  string             `json:"action"` // mute/ban/kick/unmute/unban/role_change
	Subject string             `json:"subject"`
	NewRole string             `json:"new_role,omitempty"`
	Record  *moderation.Record `json:"record,omitempty"`
}

// Options 协调器的运行参数。
type Options struct {
	MaxMessageLength  int
	Retention         retention.Policy
	TypingTTL         time.Duration
	TypingMinInterval time.Duration
	CleanupInterval   time.Duration
	CleanupThrottle   time.Duration
}

// Service 单实例协调器：消息准入、打字节流、心跳与全部管制动作都
// 经过同一把锁串行处理，因此封禁写入与在线剔除对外表现为原子动作。
type Service struct {
	mu      sync.Mutex
	opts    Options
	clk     clock.Clock
	reg     *presence.Registry
	store   *moderation.Store
	dir     Directory
	archive Archive

	msgLog     []retention.Message
	nextID     uint64
	lastTS     time.Time
	lastTyping map[string]time.Time
	lastSweep  time.Time

	nextSub int
	msgSubs map[int]func(retention.Message)
	typSubs map[int]func(TypingEvent)
	preSubs map[int]func(PresenceEvent)
	modSubs map[int]func(ModerationEvent)
}

func NewService(opts Options, clk clock.Clock, reg *presence.Registry, store *moderation.Store, dir Directory, archive Archive) *Service {
	return &Service{
		opts:       opts,
		clk:        clk,
		reg:        reg,
		store:      store,
		dir:        dir,
		archive:    archive,
		nextID:     1,
		lastTyping: make(map[string]time.Time),
		msgSubs:    make(map[int]func(retention.Message)),
		typSubs:    make(map[int]func(TypingEvent)),
		preSubs:    make(map[int]func(PresenceEvent)),
		modSubs:    make(map[int]func(ModerationEvent)),
	}
}

// persistPolicy 写透持久层时的有界退避。
var persistPolicy = backoff.Policy{MaxAttempts: 3, Base: 100 * time.Millisecond}

func (s *Service) persist(op string, fn func() error) {
	if fn == nil {
		return
	}
	if err := persistPolicy.Do(fn); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("archive write failed, memory state kept")
	}
}

// SendMessage 消息准入状态机：封禁/踢出 → 禁言 → 长度 → 入日志 → 广播。
// 被拒绝的消息绝不进入日志。
func (s *Service) SendMessage(author, avatarURL, text string) (retention.Message, error) {
	s.mu.Lock()
	now := s.clk.Now()
	st := s.store.StatusOf(author, now)
	if st.Banned || st.Kicked {
		s.mu.Unlock()
		return retention.Message{}, ErrBanned
	}
	if st.Muted {
		s.mu.Unlock()
		return retention.Message{}, ErrMuted
	}
	if utf8.RuneCountInString(text) > s.opts.MaxMessageLength {
		s.mu.Unlock()
		return retention.Message{}, ErrMessageTooLong
	}
	// 持久日志中的时间戳单调不减，并发发送撞上相同时间时按到达顺序排。
	ts := now
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts
	msg := retention.Message{ID: s.nextID, Author: author, AvatarURL: avatarURL, Text: text, CreatedAt: ts}
	s.nextID++
	s.msgLog = s.opts.Retention.Admit(s.msgLog, msg, now)
	subs := collect(s.msgSubs)
	var save func() error
	if s.archive != nil {
		save = func() error { return s.archive.SaveMessage(msg) }
	}
	s.mu.Unlock()

	s.persist("save message", save)
	metrics.MessagesTotal.Inc()
	for _, fn := range subs {
		fn(msg)
	}
	return msg, nil
}

// Typing 打字信号：同一作者 1 秒内至多一条，超出的静默丢弃；
// 信号本身带 TTL，不做任何持久化。
func (s *Service) Typing(author string) (bool, error) {
	s.mu.Lock()
	now := s.clk.Now()
	st := s.store.StatusOf(author, now)
	if st.Banned || st.Kicked {
		s.mu.Unlock()
		return false, ErrBanned
	}
	if st.Muted {
		s.mu.Unlock()
		return false, ErrMuted
	}
	if last, ok := s.lastTyping[author]; ok && now.Sub(last) < s.opts.TypingMinInterval {
		s.mu.Unlock()
		return false, nil
	}
	s.lastTyping[author] = now
	evt := TypingEvent{Author: author, At: now, ExpiresAt: now.Add(s.opts.TypingTTL)}
	subs := collect(s.typSubs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(evt)
	}
	return true, nil
}

// Heartbeat 刷新在线状态。被封禁或踢出期间的心跳被拒绝，
// 避免目标在被剔除和强制登出之间重新进入在线列表。
func (s *Service) Heartbeat(username, sessionID string) error {
	s.mu.Lock()
	now := s.clk.Now()
	st := s.store.StatusOf(username, now)
	if st.Banned || st.Kicked {
		s.mu.Unlock()
		return ErrBanned
	}
	s.reg.Heartbeat(username, sessionID, now)
	evt := PresenceEvent{Online: s.reg.Online(now)}
	subs := collect(s.preSubs)
	s.mu.Unlock()

	s.publishPresence(evt, subs)
	return nil
}

// Disconnect 显式断开某个会话，重复断开是无操作。
func (s *Service) Disconnect(username, sessionID string) {
	s.mu.Lock()
	s.reg.Remove(username, sessionID)
	evt := PresenceEvent{Online: s.reg.Online(s.clk.Now())}
	subs := collect(s.preSubs)
	s.mu.Unlock()

	s.publishPresence(evt, subs)
}

// Online 当前在线用户名集合。
func (s *Service) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Online(s.clk.Now())
}

// Messages 当前内存日志的拷贝，按创建顺序排列。
func (s *Service) Messages() []retention.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]retention.Message, len(s.msgLog))
	copy(out, s.msgLog)
	return out
}

// Status 某用户当前的生效管制状态。
func (s *Service) Status(subject string) moderation.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.StatusOf(subject, s.clk.Now())
}

// resolveRoles 管制动作求值前必须先查到双方角色，查不到的目标
// 一律按 UserNotFound 处理，不做角色猜测。
func (s *Service) resolveRoles(issuer, subject string) (string, string, error) {
	issuerRole, err := s.dir.LookupRole(issuer)
	if err != nil {
		return "", "", err
	}
	subjectRole, err := s.dir.LookupRole(subject)
	if err != nil {
		return "", "", err
	}
	return issuerRole, subjectRole, nil
}

func (s *Service) guard(issuer, subject string) (string, error) {
	// 身份相同直接拒绝，自我管制与等级无关。
	if issuer == subject {
		return "", moderation.ErrInsufficientRole
	}
	issuerRole, subjectRole, err := s.resolveRoles(issuer, subject)
	if err != nil {
		return "", err
	}
	if !role.CanModerate(issuerRole, subjectRole) {
		return "", moderation.ErrInsufficientRole
	}
	return issuerRole, nil
}

// Mute 禁言指定用户，时长上限随签发者角色而定。
func (s *Service) Mute(issuer, subject string, durationMinutes int, reason string) (moderation.Record, error) {
	s.mu.Lock()
	issuerRole, err := s.guard(issuer, subject)
	if err != nil {
		s.mu.Unlock()
		return s.reject("mute", err)
	}
	rec, err := s.store.Mute(subject, issuer, issuerRole, durationMinutes, reason, s.clk.Now())
	if err != nil {
		s.mu.Unlock()
		return s.reject("mute", err)
	}
	s.finishAction("mute", rec)
	return rec, nil
}

// Ban 封禁指定用户，0 分钟表示永久，写入记录的同时剔除其全部在线会话。
func (s *Service) Ban(issuer, subject string, durationMinutes int, reason string) (moderation.Record, error) {
	s.mu.Lock()
	issuerRole, err := s.guard(issuer, subject)
	if err != nil {
		s.mu.Unlock()
		return s.reject("ban", err)
	}
	rec, err := s.store.Ban(subject, issuer, issuerRole, durationMinutes, reason, s.clk.Now())
	if err != nil {
		s.mu.Unlock()
		return s.reject("ban", err)
	}
	s.finishAction("ban", rec)
	return rec, nil
}

// Kick 踢出指定用户，固定十分钟。
func (s *Service) Kick(issuer, subject string) (moderation.Record, error) {
	s.mu.Lock()
	issuerRole, err := s.guard(issuer, subject)
	if err != nil {
		s.mu.Unlock()
		return s.reject("kick", err)
	}
	rec, err := s.store.Kick(subject, issuer, issuerRole, s.clk.Now())
	if err != nil {
		s.mu.Unlock()
		return s.reject("kick", err)
	}
	s.finishAction("kick", rec)
	return rec, nil
}

// Unmute 解除禁言，需要版主及以上角色，对不存在的记录是无操作。
func (s *Service) Unmute(issuer, subject string) error {
	return s.lift("unmute", moderation.KindMute, issuer, subject, role.Moderator)
}

// Unban 解除封禁，仅管理员可用。
func (s *Service) Unban(issuer, subject string) error {
	return s.lift("unban", moderation.KindBan, issuer, subject, role.Admin)
}

func (s *Service) lift(action, kind, issuer, subject, minRole string) error {
	s.mu.Lock()
	issuerRole, _, err := s.resolveRoles(issuer, subject)
	if err != nil {
		s.mu.Unlock()
		_, err = s.reject(action, err)
		return err
	}
	if role.Rank(issuerRole) < role.Rank(minRole) {
		s.mu.Unlock()
		_, err = s.reject(action, moderation.ErrInsufficientRole)
		return err
	}
	if kind == moderation.KindMute {
		s.store.Unmute(subject)
	} else {
		s.store.Unban(subject)
	}
	var del func() error
	if s.archive != nil {
		del = func() error { return s.archive.DeleteModeration(kind, subject) }
	}
	evt := ModerationEvent{Action: action, Subject: subject}
	modSubs := collect(s.modSubs)
	s.mu.Unlock()

	s.persist("delete moderation", del)
	metrics.ModerationActionsTotal.WithLabelValues(action, "ok").Inc()
	for _, fn := range modSubs {
		fn(evt)
	}
	return nil
}

// ChangeRole 调整用户角色：仅管理员可用且不能改自己，新角色必须合法。
func (s *Service) ChangeRole(issuer, subject, newRole string) error {
	s.mu.Lock()
	issuerRole, err := s.dir.LookupRole(issuer)
	if err != nil {
		s.mu.Unlock()
		_, err = s.reject("role_change", err)
		return err
	}
	if err := moderation.CheckRoleChange(subject, issuer, issuerRole); err != nil {
		s.mu.Unlock()
		_, err = s.reject("role_change", err)
		return err
	}
	if !role.Valid(newRole) {
		s.mu.Unlock()
		_, err = s.reject("role_change", ErrInvalidRole)
		return err
	}
	if _, err := s.dir.LookupRole(subject); err != nil {
		s.mu.Unlock()
		_, err = s.reject("role_change", err)
		return err
	}
	if err := s.dir.SetRole(subject, newRole); err != nil {
		s.mu.Unlock()
		_, err = s.reject("role_change", err)
		return err
	}
	evt := ModerationEvent{Action: "role_change", Subject: subject, NewRole: newRole}
	modSubs := collect(s.modSubs)
	s.mu.Unlock()

	metrics.ModerationActionsTotal.WithLabelValues("role_change", "ok").Inc()
	for _, fn := range modSubs {
		fn(evt)
	}
	return nil
}

// reject 统一记录失败动作的指标后原样返回错误。
func (s *Service) reject(action string, err error) (moderation.Record, error) {
	metrics.ModerationActionsTotal.WithLabelValues(action, "rejected").Inc()
	return moderation.Record{}, err
}

// finishAction 在持锁状态下被调用，负责收尾：写透、广播、放锁。
func (s *Service) finishAction(action string, rec moderation.Record) {
	var save func() error
	if s.archive != nil {
		save = func() error { return s.archive.SaveModeration(rec) }
	}
	modEvt := ModerationEvent{Action: action, Subject: rec.Subject, Record: &rec}
	preEvt := PresenceEvent{Online: s.reg.Online(s.clk.Now())}
	modSubs := collect(s.modSubs)
	preSubs := collect(s.preSubs)
	s.mu.Unlock()

	s.persist("save moderation", save)
	metrics.ModerationActionsTotal.WithLabelValues(action, "ok").Inc()
	for _, fn := range modSubs {
		fn(modEvt)
	}
	if action == "ban" || action == "kick" {
		s.publishPresence(preEvt, preSubs)
	}
}

// Cleanup 周期清扫：裁剪消息日志、淘汰陈旧会话、清理过期管制记录。
// 两次清扫之间保持最小间隔，手动触发也受节流约束。
func (s *Service) Cleanup() (evicted int) {
	s.mu.Lock()
	now := s.clk.Now()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < s.opts.CleanupThrottle {
		s.mu.Unlock()
		return 0
	}
	s.lastSweep = now
	survivors, gone := s.opts.Retention.Sweep(s.msgLog, now)
	s.msgLog = survivors
	stale := s.reg.Sweep(now)
	purged := s.store.Purge(now)
	for author, last := range s.lastTyping {
		if now.Sub(last) >= s.opts.TypingTTL {
			delete(s.lastTyping, author)
		}
	}
	var del func() error
	if s.archive != nil && s.opts.Retention.MaxAge > 0 {
		cutoff := now.Add(-s.opts.Retention.MaxAge)
		del = func() error { return s.archive.DeleteMessagesBefore(cutoff) }
	}
	s.mu.Unlock()

	s.persist("delete expired messages", del)
	if len(gone) > 0 || stale > 0 || purged > 0 {
		log.Debug().Int("messages", len(gone)).Int("stale_sessions", stale).Int("expired_records", purged).Msg("cleanup sweep")
	}
	return len(gone)
}

// Run 按配置的间隔跑清扫循环，直到 ctx 结束。
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// LoadModeration 启动时回放持久化的管制记录。
func (s *Service) LoadModeration(recs []moderation.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Load(recs, s.clk.Now())
}

// LoadMessages 启动时回放归档消息，回放时即套用留存窗口。
func (s *Service) LoadMessages(msgs []retention.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	for _, m := range msgs {
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
		if m.CreatedAt.After(s.lastTS) {
			s.lastTS = m.CreatedAt
		}
		s.msgLog = s.opts.Retention.Admit(s.msgLog, m, now)
	}
}

func (s *Service) publishPresence(evt PresenceEvent, subs []func(PresenceEvent)) {
	metrics.OnlineUsers.Set(float64(len(evt.Online)))
	for _, fn := range subs {
		fn(evt)
	}
}

// SubscribeMessages 订阅消息广播，返回退订函数。
func (s *Service) SubscribeMessages(fn func(retention.Message)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.msgSubs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.msgSubs, id)
		s.mu.Unlock()
	}
}

// SubscribeTyping 订阅打字提示。
func (s *Service) SubscribeTyping(fn func(TypingEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.typSubs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.typSubs, id)
		s.mu.Unlock()
	}
}

// SubscribePresence 订阅在线集合变化。
func (s *Service) SubscribePresence(fn func(PresenceEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.preSubs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.preSubs, id)
		s.mu.Unlock()
	}
}

// SubscribeModeration 订阅管制事件。
func (s *Service) SubscribeModeration(fn func(ModerationEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.modSubs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.modSubs, id)
		s.mu.Unlock()
	}
}

func collect[T any](m map[int]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
