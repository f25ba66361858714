package domain

import "time"

// EmailLog 一次邮件事件记录（转发、回复、拦截或退信）。
// 只追加，本服务只读。方向需要通过 IsReply 推断。
type EmailLog struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	AliasID   uint      `json:"gen_email_id" gorm:"column:gen_email_id;index;not null"`
	ContactID *uint     `json:"contact_id" gorm:"index"`
	IsReply   bool      `json:"is_reply" gorm:"not null;default:false"`
	Blocked   bool      `json:"blocked" gorm:"not null;default:false"`
	Bounced   bool      `json:"bounced" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// AliasLog 日志行与通信方信息的联合视图
type AliasLog struct {
	ID           uint
	When         time.Time
	IsReply      bool
	Blocked      bool
	Bounced      bool
	WebsiteEmail string
	WebsiteFrom  string
}

// Correspondent 通信方：优先原始 From 文本
func (l *AliasLog) Correspondent() string {
	return correspondent(l.WebsiteFrom, l.WebsiteEmail)
}

// LogFlagCount 按别名和标志位分组的日志计数
type LogFlagCount struct {
	AliasID uint  `gorm:"column:gen_email_id"`
	IsReply bool  `gorm:"column:is_reply"`
	Bounced bool  `gorm:"column:bounced"`
	Blocked bool  `gorm:"column:blocked"`
	Count   int64 `gorm:"column:count"`
}

// TableName 指定表名
func (EmailLog) TableName() string {
	return "email_logs"
}
