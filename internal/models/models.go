package models

import "time"

// User 注册用户。Role 与管制状态是两条独立的轴：被封禁的管理员
// 在显式降级前仍然是管理员。
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	AvatarURL    string `gorm:"size:256"`
	Role         string `gorm:"size:16;not null;default:user"`
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message 消息归档行，内存日志被裁剪后这里同步删除。
type Message struct {
	ID        uint64    `gorm:"primaryKey"`
	Author    string    `gorm:"index;size:64;not null"`
	AvatarURL string    `gorm:"size:256"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

// ModerationRecord 管制记录的持久化形态，重启后回放仍生效的记录。
// 每个 (kind, subject) 至多一行，ExpiresAt 为 NULL 表示永久。
type ModerationRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       string `gorm:"index:idx_mod_kind_subject;size:8;not null"`
	Subject    string `gorm:"index:idx_mod_kind_subject;size:64;not null"`
	Issuer     string `gorm:"size:64;not null"`
	IssuerRole string `gorm:"size:16;not null"`
	Reason     string `gorm:"size:512"`
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// RefreshToken 刷新令牌，旋转刷新时旧令牌被标记吊销。
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
