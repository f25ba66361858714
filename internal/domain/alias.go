package domain

import "time"

// Alias 表示用户持有的一次性邮箱别名。
// UserID 在创建后不可修改，所有权判断都基于它。
type Alias struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`                       // 所属用户，创建后不可变
	Email     string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"` // 别名地址
	Enabled   bool      `json:"enabled" gorm:"not null"`                             // 是否启用转发
	Note      *string   `json:"note" gorm:"type:text"`                               // 备注，可为空
	CreatedAt time.Time `json:"created_at"`
}

// OwnedBy 判断别名是否属于指定用户
func (a *Alias) OwnedBy(userID uint) bool {
	return a != nil && a.UserID == userID
}

// AliasSummary 别名列表项，附带按动作统计的邮件数量
type AliasSummary struct {
	Alias     *Alias
	NbForward int64
	NbBlock   int64
	NbReply   int64
}

// TableName 指定表名
func (Alias) TableName() string {
	return "aliases"
}
