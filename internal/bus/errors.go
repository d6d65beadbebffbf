package bus

import "errors"

// 发送与打字路径上的拒绝原因，handler 据此映射状态码与提示文案。
var (
	ErrBanned         = errors.New("banned")
	ErrMuted          = errors.New("muted")
	ErrMessageTooLong = errors.New("message too long")
	ErrInvalidRole    = errors.New("invalid role")
)
