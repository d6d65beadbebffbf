package retention

import "time"

// Message 消息日志中的一条记录，ID 按创建顺序递增。
type Message struct {
	ID        uint64    `json:"id"`
	Author    string    `json:"author"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Policy 同时按时间窗与条数窗裁剪消息日志，两个窗口都是从头部
// 单调裁剪，以更严格的一方为准。
type Policy struct {
	MaxAge      time.Duration
	MaxMessages int
}

func (p Policy) trimAge(log []Message, now time.Time) ([]Message, []Message) {
	cutoff := now.Add(-p.MaxAge)
	i := 0
	for i < len(log) && !log[i].CreatedAt.After(cutoff) {
		i++
	}
	return log[i:], log[:i]
}

func (p Policy) trimCount(log []Message) ([]Message, []Message) {
	if len(log) <= p.MaxMessages {
		return log, nil
	}
	excess := len(log) - p.MaxMessages
	return log[excess:], log[:excess]
}

// Admit 追加一条消息并立即应用两个窗口。调用返回后日志长度不超过
// MaxMessages，且不含早于时间窗的消息。
func (p Policy) Admit(log []Message, msg Message, now time.Time) []Message {
	log = append(log, msg)
	log, _ = p.trimAge(log, now)
	log, _ = p.trimCount(log)
	return log
}

// Sweep 周期清扫：即使没有新消息进来，闲置房间的旧消息也会被
// 时间窗裁掉。返回保留与被清除两段。
func (p Policy) Sweep(log []Message, now time.Time) (survivors, evicted []Message) {
	survivors, evicted = p.trimAge(log, now)
	kept, excess := p.trimCount(survivors)
	if len(excess) > 0 {
		evicted = append(evicted, excess...)
		survivors = kept
	}
	return survivors, evicted
}
