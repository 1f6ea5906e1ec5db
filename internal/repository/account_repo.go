package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meli_dev_v1_202609/internal/model"
)

// AccountRepository 账号数据访问接口
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	GetBySellerID(ctx context.Context, sellerID int64) (*model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
	// UpsertBySellerID 按卖家 ID 幂等写入，已存在时刷新凭证和昵称
	UpsertBySellerID(ctx context.Context, account *model.Account) error
	// UpdateToken 持久化一组新 token，必须在 token 端点返回后立刻调用
	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	UpdateTokenStatus(ctx context.Context, id int64, status string) error
	// UpdateSyncState 更新状态机与最近一条消息
	UpdateSyncState(ctx context.Context, id int64, state, message string) error
	SetCursor(ctx context.Context, id int64, cursor *string) error
	TouchLastRun(ctx context.Context, id int64) error
	// PickNextForSync 选出下一个要同步的账号：REQUESTED 优先，
	// 其次是半途的 SYNCING，最后按上次运行时间从旧到新轮转
	PickNextForSync(ctx context.Context) (*model.Account, error)
	// FindExpiringTokens 找出 access token 将在窗口内过期的账号
	FindExpiringTokens(ctx context.Context, within time.Duration) ([]model.Account, error)
	// Delete 删除账号并级联清掉其全部商品镜像，硬删除，不可恢复
	Delete(ctx context.Context, id int64) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建账号仓储
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetBySellerID(ctx context.Context, sellerID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("meli_seller_id = ?", sellerID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.WithContext(ctx).Order("id asc").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) UpsertBySellerID(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "meli_seller_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"nickname", "site_id",
			"access_token", "refresh_token", "token_expires_at", "token_status",
			"updated_at",
		}),
	}).Create(account).Error
}

func (r *accountRepository) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
			"token_status":     model.TokenStatusValid,
		}).Error
}

func (r *accountRepository) UpdateTokenStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Update("token_status", status).Error
}

func (r *accountRepository) UpdateSyncState(ctx context.Context, id int64, state, message string) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":       state,
			"sync_last_message": message,
		}).Error
}

func (r *accountRepository) SetCursor(ctx context.Context, id int64, cursor *string) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Update("scroll_cursor", cursor).Error
}

func (r *accountRepository) TouchLastRun(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Update("sync_last_run_at", time.Now()).Error
}

func (r *accountRepository) PickNextForSync(ctx context.Context) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Where("refresh_token <> ''").
		Order(fmt.Sprintf(
			"CASE sync_status WHEN '%s' THEN 0 WHEN '%s' THEN 1 ELSE 2 END, COALESCE(sync_last_run_at, '1970-01-01') asc",
			model.SyncStateRequested, model.SyncStateSyncing,
		)).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindExpiringTokens(ctx context.Context, within time.Duration) ([]model.Account, error) {
	var accounts []model.Account
	deadline := time.Now().Add(within)
	err := r.db.WithContext(ctx).
		Where("token_expires_at <= ? AND token_status = ? AND refresh_token <> ''", deadline, model.TokenStatusValid).
		Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("account_id = ?", id).Delete(&model.Item{}).Error; err != nil {
			return fmt.Errorf("删除账号商品失败: %w", err)
		}
		if err := tx.Unscoped().Delete(&model.Account{}, id).Error; err != nil {
			return fmt.Errorf("删除账号失败: %w", err)
		}
		return nil
	})
}
