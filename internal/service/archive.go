package service

import (
	"time"

	"github.com/C4boose/hfconvo/internal/models"
	"github.com/C4boose/hfconvo/internal/moderation"
	"github.com/C4boose/hfconvo/internal/retention"
	"gorm.io/gorm"
)

// Archive 把协调器的内存状态写透到 Postgres，重启后据此恢复。
type Archive struct {
	db *gorm.DB
}

func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

// SaveModeration 覆盖写入某 (kind, subject) 的记录，同种记录至多一行。
func (a *Archive) SaveModeration(rec moderation.Record) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ? AND subject = ?", rec.Kind, rec.Subject).Delete(&models.ModerationRecord{}).Error; err != nil {
			return err
		}
		row := models.ModerationRecord{
			Kind:       rec.Kind,
			Subject:    rec.Subject,
			Issuer:     rec.Issuer,
			IssuerRole: rec.IssuerRole,
			Reason:     rec.Reason,
			ExpiresAt:  rec.ExpiresAt,
			CreatedAt:  rec.CreatedAt,
		}
		return tx.Create(&row).Error
	})
}

// DeleteModeration 删除某 (kind, subject) 的记录，删空表也不算错。
func (a *Archive) DeleteModeration(kind, subject string) error {
	return a.db.Where("kind = ? AND subject = ?", kind, subject).Delete(&models.ModerationRecord{}).Error
}

// LoadModeration 载入全部持久化记录，过期过滤交给调用方。
func (a *Archive) LoadModeration() ([]moderation.Record, error) {
	var rows []models.ModerationRecord
	if err := a.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]moderation.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, moderation.Record{
			Kind:       r.Kind,
			Subject:    r.Subject,
			Issuer:     r.Issuer,
			IssuerRole: r.IssuerRole,
			Reason:     r.Reason,
			ExpiresAt:  r.ExpiresAt,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

// SaveMessage 归档一条已准入的消息。
func (a *Archive) SaveMessage(msg retention.Message) error {
	row := models.Message{
		ID:        msg.ID,
		Author:    msg.Author,
		AvatarURL: msg.AvatarURL,
		Content:   msg.Text,
		CreatedAt: msg.CreatedAt,
	}
	return a.db.Create(&row).Error
}

// DeleteMessagesBefore 删除时间窗之外的归档消息。
func (a *Archive) DeleteMessagesBefore(t time.Time) error {
	return a.db.Where("created_at < ?", t).Delete(&models.Message{}).Error
}

// LoadMessages 按创建顺序载入最近的归档消息。
func (a *Archive) LoadMessages(limit int) ([]retention.Message, error) {
	var rows []models.Message
	if err := a.db.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	out := make([]retention.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, retention.Message{
			ID:        r.ID,
			Author:    r.Author,
			AvatarURL: r.AvatarURL,
			Text:      r.Content,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
