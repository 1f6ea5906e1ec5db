package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meli_dev_v1_202609/internal/model"
)

// SyncLockRepository 数据库咨询锁。锁行可能不存在（首次）、被别人
// 持有（跳过本轮）、或者过期（崩溃遗留，可抢占）。
type SyncLockRepository interface {
	// Acquire 尝试以 owner 身份拿锁，拿到返回 true
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	// Release 释放锁，只有当前持有者可释放
	Release(ctx context.Context, name, owner string) error
}

type syncLockRepository struct {
	db *gorm.DB
}

// NewSyncLockRepository 创建锁仓储
func NewSyncLockRepository(db *gorm.DB) SyncLockRepository {
	return &syncLockRepository{db: db}
}

func (r *syncLockRepository) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	// 先尝试接管：锁空闲、自己持有、或已过期都可以拿
	result := r.db.WithContext(ctx).Model(&model.SyncLock{}).
		Where("name = ? AND (owner = '' OR owner = ? OR expires_at < ?)", name, owner, now).
		Updates(map[string]interface{}{
			"owner":      owner,
			"expires_at": expiresAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// 锁行不存在时插入。并发插入只有一个能成功，失败方视为没抢到
	insert := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&model.SyncLock{
		Name:      name,
		Owner:     owner,
		ExpiresAt: expiresAt,
	})
	if insert.Error != nil {
		return false, insert.Error
	}
	return insert.RowsAffected > 0, nil
}

func (r *syncLockRepository) Release(ctx context.Context, name, owner string) error {
	return r.db.WithContext(ctx).Model(&model.SyncLock{}).
		Where("name = ? AND owner = ?", name, owner).
		Updates(map[string]interface{}{
			"owner":      "",
			"expires_at": time.Unix(0, 0),
		}).Error
}
