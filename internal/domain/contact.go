package domain

import (
	"strings"
	"time"
)

// Contact 表示通过某个别名认识的通信方，以及用于回复对方的反向别名。
//
// 约束：
//   - ReplyEmail 全局唯一
//   - (AliasID, WebsiteEmail) 唯一，同一别名下同一通信方只记录一次
//   - WebsiteEmail 是从 WebsiteFrom 解析出的规范地址，不能为空
type Contact struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	AliasID      uint      `json:"gen_email_id" gorm:"column:gen_email_id;not null;uniqueIndex:idx_contacts_alias_email,priority:1"`
	WebsiteEmail string    `json:"website_email" gorm:"type:varchar(255);not null;uniqueIndex:idx_contacts_alias_email,priority:2"`
	WebsiteFrom  string    `json:"website_from" gorm:"type:varchar(512)"` // 原始 From 文本
	ReplyEmail   string    `json:"reply_email" gorm:"type:varchar(255);not null;uniqueIndex:idx_contacts_reply_email"`
	CreatedAt    time.Time `json:"created_at"`
}

// Correspondent 返回展示用的通信方：优先原始 From 文本，否则为解析后的地址
func (c *Contact) Correspondent() string {
	return correspondent(c.WebsiteFrom, c.WebsiteEmail)
}

// DefaultDisplayName 无显示名时使用的名称，例如 bob at x.com
func (c *Contact) DefaultDisplayName() string {
	return strings.Replace(c.WebsiteEmail, "@", " at ", 1)
}

func correspondent(from, email string) string {
	if from != "" {
		return from
	}
	return email
}

// TableName 指定表名
func (Contact) TableName() string {
	return "contacts"
}
