package backoff

import "time"

// Policy 有界重试策略：最多尝试 MaxAttempts 次，间隔从 Base 开始逐次翻倍。
type Policy struct {
	MaxAttempts int
	Base        time.Duration
}

// Do 依次执行 fn 直到成功或次数用尽，返回最后一次的错误。
func (p Policy) Do(fn func() error) error {
	delay := p.Base
	var err error
	for i := 0; i < p.MaxAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < p.MaxAttempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
