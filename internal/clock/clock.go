package clock

import "time"

// Clock 抽象当前时间来源，过期判断统一经由它取时间，方便测试注入假时钟。
type Clock interface {
	Now() time.Time
}

// System 使用系统墙钟。
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fake 可手动拨动的测试时钟。
type Fake struct {
	T time.Time
}

func (f *Fake) Now() time.Time { return f.T }

// Advance 前进指定时长。
func (f *Fake) Advance(d time.Duration) { f.T = f.T.Add(d) }
