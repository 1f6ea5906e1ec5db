package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meli_dev_v1_202609/internal/model"
)

// ItemFilter 商品列表查询条件
type ItemFilter struct {
	AccountID    int64
	Status       string
	LogisticType string
	FreeShipping *bool
	Keyword      string
	// StaleSaleDays 大于 0 时只看 N 天内没有成交的商品
	StaleSaleDays int
	Page          int
	PageSize      int
}

// ItemRepository 商品镜像数据访问接口
type ItemRepository interface {
	// InsertDiscovered 写入发现阶段扫到的商品 ID，已存在的跳过，返回新插入条数
	InsertDiscovered(ctx context.Context, accountID int64, itemIDs []string) (int64, error)
	// UpsertDetail 按 meli_item_id 幂等写入详情。date_created 只在
	// 首次写入时生效，后续覆盖保持原值
	UpsertDetail(ctx context.Context, item *model.Item) error
	GetByMeliID(ctx context.Context, meliItemID string) (*model.Item, error)
	// ListPending 取一批待拉详情的商品（新发现的和被标记待刷新的）
	ListPending(ctx context.Context, accountID int64, limit int) ([]model.Item, error)
	CountPending(ctx context.Context, accountID int64) (int64, error)
	CountByAccount(ctx context.Context, accountID int64) (int64, error)
	CountByStatus(ctx context.Context, accountID int64) (map[string]int64, error)
	// MarkUpdateRequested 本地状态操作后打标，等待下一轮同步回拉覆盖
	MarkUpdateRequested(ctx context.Context, meliItemIDs []string) error
	MarkError(ctx context.Context, meliItemID string, message string) error
	List(ctx context.Context, filter ItemFilter) ([]model.Item, int64, error)
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository 创建商品仓储
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) InsertDiscovered(ctx context.Context, accountID int64, itemIDs []string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	items := make([]model.Item, 0, len(itemIDs))
	for _, id := range itemIDs {
		items = append(items, model.Item{
			AccountID:  accountID,
			MeliItemID: id,
			SyncFlag:   model.ItemFlagPending,
		})
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meli_item_id"}},
		DoNothing: true,
	}).Create(&items)
	return result.RowsAffected, result.Error
}

func (r *itemRepository) UpsertDetail(ctx context.Context, item *model.Item) error {
	now := time.Now()
	item.SyncFlag = model.ItemFlagSynced
	item.SyncError = ""
	item.MeliSyncedAt = &now

	assignments := map[string]interface{}{
		"account_id":           item.AccountID,
		"title":                item.Title,
		"price":                item.Price,
		"original_price":       item.OriginalPrice,
		"currency_id":          item.CurrencyID,
		"status":               item.Status,
		"permalink":            item.Permalink,
		"thumbnail_url":        item.ThumbnailURL,
		"secure_thumbnail_url": item.SecureThumbnailURL,
		"sold_quantity":        item.SoldQuantity,
		"available_quantity":   item.AvailableQuantity,
		"shipping_mode":        item.ShippingMode,
		"logistic_type":        item.LogisticType,
		"free_shipping":        item.FreeShipping,
		"catalog_listing":      item.CatalogListing,
		"category_id":          item.CategoryID,
		"health_score":         item.HealthScore,
		"visit_count":          item.VisitCount,
		"last_sale_at":         item.LastSaleAt,
		"freight_sudeste":      item.FreightSudeste,
		"freight_nordeste":     item.FreightNordeste,
		"freight_sul":          item.FreightSul,
		"billable_weight":      item.BillableWeight,
		"weight_status":        item.WeightStatus,
		"tags":                 item.Tags,
		"attributes":           item.Attributes,
		"pictures":             item.Pictures,
		"sync_flag":            item.SyncFlag,
		"sync_error":           item.SyncError,
		"meli_synced_at":       item.MeliSyncedAt,
		"updated_at":           now,
		// 创建时间以首次同步为准，后续覆盖保持原值
		"date_created": gorm.Expr("COALESCE(items.date_created, excluded.date_created)"),
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meli_item_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(item).Error
}

func (r *itemRepository) GetByMeliID(ctx context.Context, meliItemID string) (*model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).Where("meli_item_id = ?", meliItemID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) ListPending(ctx context.Context, accountID int64, limit int) ([]model.Item, error) {
	var items []model.Item
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND sync_flag IN ?", accountID,
			[]int{model.ItemFlagPending, model.ItemFlagUpdateRequested}).
		Order("id asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *itemRepository) CountPending(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Item{}).
		Where("account_id = ? AND sync_flag IN ?", accountID,
			[]int{model.ItemFlagPending, model.ItemFlagUpdateRequested}).
		Count(&count).Error
	return count, err
}

func (r *itemRepository) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Item{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

func (r *itemRepository) CountByStatus(ctx context.Context, accountID int64) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.Item{}).
		Select("status, count(*) as count").
		Where("account_id = ?", accountID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (r *itemRepository) MarkUpdateRequested(ctx context.Context, meliItemIDs []string) error {
	if len(meliItemIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Item{}).
		Where("meli_item_id IN ?", meliItemIDs).
		Update("sync_flag", model.ItemFlagUpdateRequested).Error
}

func (r *itemRepository) MarkError(ctx context.Context, meliItemID string, message string) error {
	if len(message) > 255 {
		message = message[:255]
	}
	return r.db.WithContext(ctx).Model(&model.Item{}).
		Where("meli_item_id = ?", meliItemID).
		Update("sync_error", message).Error
}

func (r *itemRepository) List(ctx context.Context, filter ItemFilter) ([]model.Item, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Item{})

	if filter.AccountID > 0 {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.LogisticType != "" {
		query = query.Where("logistic_type = ?", filter.LogisticType)
	}
	if filter.FreeShipping != nil {
		query = query.Where("free_shipping = ?", *filter.FreeShipping)
	}
	if filter.Keyword != "" {
		query = query.Where("title LIKE ? OR meli_item_id = ?", "%"+filter.Keyword+"%", filter.Keyword)
	}
	if filter.StaleSaleDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -filter.StaleSaleDays)
		query = query.Where("last_sale_at IS NULL OR last_sale_at < ?", cutoff)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var items []model.Item
	err := query.Order("sold_quantity desc, id asc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}
