package service

import (
	"errors"
	"fmt"

	"github.com/C4boose/hfconvo/internal/models"
	"github.com/C4boose/hfconvo/internal/moderation"
	"gorm.io/gorm"
)

// Directory 以用户表为准的角色目录。管制动作求值前必须经它查角色，
// 未注册的目标按 UserNotFound 处理，不猜默认角色。
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// LookupRole 查询用户角色。
func (d *Directory) LookupRole(username string) (string, error) {
	var user models.User
	if err := d.db.Select("id", "username", "role").Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", moderation.ErrUserNotFound
		}
		return "", fmt.Errorf("%w: %v", moderation.ErrStoreUnavailable, err)
	}
	return user.Role, nil
}

// SetRole 持久化角色变更。
func (d *Directory) SetRole(username, newRole string) error {
	res := d.db.Model(&models.User{}).Where("username = ?", username).Update("role", newRole)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", moderation.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return moderation.ErrUserNotFound
	}
	return nil
}
