package model

import "time"

// SyncLock 数据库级咨询锁，保证同一时刻只有一个同步 tick 在跑。
// owner 为持有者随机生成的 UUID，expires_at 过期后锁可被抢占，
// 避免进程崩溃把锁带进坟墓。
type SyncLock struct {
	Name      string    `gorm:"primaryKey;size:50" json:"name"`
	Owner     string    `gorm:"size:36;not null;default:''" json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SyncLock) TableName() string {
	return "sync_locks"
}

// 全局同步锁名
const LockNameSyncTick = "sync_tick"
