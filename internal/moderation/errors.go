package moderation

import "errors"

// 管制相关的业务错误，权限与校验类错误一律同步返回给调用方，
// 绝不静默降级；handler 按错误类型映射 HTTP 状态码。
var (
	ErrInvalidDuration          = errors.New("invalid duration")
	ErrDurationExceedsRoleLimit = errors.New("duration exceeds role limit")
	ErrInsufficientRole         = errors.New("insufficient role")
	ErrSelfRoleChange           = errors.New("cannot change own role")
	ErrUserNotFound             = errors.New("user not found")
	ErrStoreUnavailable         = errors.New("store unavailable")
)
