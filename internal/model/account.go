package model

import (
	"time"
)

// ==================== 同步状态机 ====================

// 账号同步状态，数据库中存字符串便于排查
const (
	SyncStateIdle      = "IDLE"      // 从未同步
	SyncStateRequested = "REQUESTED" // 用户或定时器请求了一次全量同步
	SyncStateSyncing   = "SYNCING"   // 同步进行中（可跨多个 tick）
	SyncStateCompleted = "COMPLETED" // 最近一轮同步已完成
	SyncStateError     = "ERROR"     // 最近一轮同步因致命错误终止
)

// Token 状态
const (
	TokenStatusValid   = "valid"
	TokenStatusExpired = "expired"
	TokenStatusInvalid = "invalid" // refresh token 已失效，需要重新授权
)

// Account 美客多卖家账号
type Account struct {
	BaseModel
	AuditMixin

	// 美客多侧的卖家 ID（user_id），全局唯一
	MeliSellerID int64  `gorm:"uniqueIndex;not null" json:"meli_seller_id"`
	Nickname     string `gorm:"size:100" json:"nickname"`
	SiteID       string `gorm:"size:10;default:'MLB'" json:"site_id"`

	// OAuth 凭证。refresh_token 每次刷新都会轮换，必须在拿到响应后立即落库
	AccessToken    string    `gorm:"size:512" json:"-"`
	RefreshToken   string    `gorm:"size:512" json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	TokenStatus    string    `gorm:"size:20;default:'valid'" json:"token_status"`

	// 同步进度。scroll_cursor 非 NULL 表示发现阶段没走完：空串是
	// "刚启动、还在首页"的哨兵，其余值可从该游标续扫；走到尾页才清 NULL
	SyncStatus      string     `gorm:"size:20;index;default:'IDLE'" json:"sync_status"`
	ScrollCursor    *string    `gorm:"type:text" json:"-"`
	SyncLastMessage string     `gorm:"size:500" json:"sync_last_message"`
	SyncLastRunAt   *time.Time `json:"sync_last_run_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// TokenExpiringWithin 判断 access token 是否在给定窗口内过期
func (a *Account) TokenExpiringWithin(d time.Duration) bool {
	return time.Until(a.TokenExpiresAt) <= d
}

// AtRest 判断账号是否处于可以发起新一轮同步的静止状态
func (a *Account) AtRest() bool {
	switch a.SyncStatus {
	case SyncStateIdle, SyncStateCompleted, SyncStateError:
		return true
	}
	return false
}
