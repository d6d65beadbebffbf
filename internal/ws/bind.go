package ws

import (
	"encoding/json"

	"github.com/C4boose/hfconvo/internal/bus"
	"github.com/C4boose/hfconvo/internal/moderation"
	"github.com/C4boose/hfconvo/internal/retention"
)

// Bind 把协调器的四路订阅接到 Hub 上，核心只管状态变迁与通知，
// 渲染层通过这些帧自行更新。
func Bind(h *Hub, svc *bus.Service) {
	svc.SubscribeMessages(func(m retention.Message) {
		h.Broadcast(frame("message", m))
	})
	svc.SubscribeTyping(func(e bus.TypingEvent) {
		h.Broadcast(frame("typing", e))
	})
	svc.SubscribePresence(func(e bus.PresenceEvent) {
		h.Broadcast(frame("presence", e))
	})
	svc.SubscribeModeration(func(e bus.ModerationEvent) {
		h.Broadcast(frame("moderation", e))
		if e.Action == moderation.KindBan || e.Action == moderation.KindKick {
			h.EvictUser(e.Subject)
		}
	})
}

func frame(typ string, payload any) []byte {
	b, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{typ, payload})
	if err != nil {
		return nil
	}
	return b
}
