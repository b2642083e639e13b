package models

import (
	"time"
)

// 分享内容类型
const (
	ShareKindText = "text" // 文本内容，直接存数据库
	ShareKindFile = "file" // 文件内容，存对象存储
)

// Share 一条分享记录，元数据行是存在性、浏览计数和过期时间的唯一权威来源
type Share struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`       // 对外暴露的唯一分享ID，创建后不可变
	Kind         string     `gorm:"type:varchar(8);not null" json:"kind"`        // text 或 file
	Content      *string    `gorm:"type:mediumtext" json:"content,omitempty"`    // 文本分享的内容
	BlobKey      *string    `gorm:"type:varchar(255)" json:"-"`                  // 文件分享在对象存储中的键
	Filename     *string    `gorm:"type:varchar(255)" json:"filename,omitempty"` // 上传时的原始文件名
	MimeType     *string    `gorm:"type:varchar(128)" json:"mimetype,omitempty"`
	PasswordHash *string    `gorm:"type:varchar(255)" json:"-"` // 可选：访问密码的 bcrypt 哈希，绝不存明文
	MaxViews     *int64     `json:"max_views,omitempty"`        // 浏览次数上限，NULL 表示不限次数（时间模式）
	CurrentViews int64      `gorm:"not null;default:0" json:"current_views"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"` // 可选：绝对过期时间，NULL 表示不按时间过期
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
}

// 指定gorm的表名
func (Share) TableName() string {
	return "shares"
}

// IsDead 判断记录在 now 时刻是否已经死亡（次数耗尽或时间过期）
// 死亡的记录对任何读取者都不可见，观测到即删除
func (s *Share) IsDead(now time.Time) bool {
	if s.MaxViews != nil && s.CurrentViews >= *s.MaxViews {
		return true
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return true
	}
	return false
}

// ViewsRemaining 返回剩余可浏览次数，不限次数时返回 nil
func (s *Share) ViewsRemaining() *int64 {
	if s.MaxViews == nil {
		return nil
	}
	remaining := *s.MaxViews - s.CurrentViews
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// IsLastView 本次浏览之后记录是否耗尽
func (s *Share) IsLastView() bool {
	return s.MaxViews != nil && s.CurrentViews >= *s.MaxViews
}

// DeleteShareTask 投递到消息队列的分享删除任务
// 内容键随任务一起携带：上一次尝试可能删掉了行却没删掉内容，
// 重试时行已经查不到，只能凭任务里的键补删
type DeleteShareTask struct {
	ShareID   string    `json:"share_id"`
	BlobKey   *string   `json:"blob_key,omitempty"` // 文件分享的内容键，文本分享为空
	NotBefore time.Time `json:"not_before"`         // 最后一次浏览的响应还在路上，删除延迟到该时间点之后
}
