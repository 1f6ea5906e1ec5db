package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meli_dev_v1_202609/internal/model"
)

// setupTestDB 每个测试用独立的内存库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Account{}, &model.Item{}, &model.SyncLock{}, &model.SysUser{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return db
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// ==================== 发现插入 ====================

func TestInsertDiscoveredIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	inserted, err := repo.InsertDiscovered(ctx, 1, []string{"MLB1", "MLB2", "MLB3"})
	if err != nil {
		t.Fatalf("首次插入失败: %v", err)
	}
	if inserted != 3 {
		t.Errorf("首次插入 = %d, want 3", inserted)
	}

	// 重复发现同样的 ID 不应产生新行
	inserted, err = repo.InsertDiscovered(ctx, 1, []string{"MLB2", "MLB3", "MLB4"})
	if err != nil {
		t.Fatalf("二次插入失败: %v", err)
	}
	if inserted != 1 {
		t.Errorf("二次插入 = %d, want 1", inserted)
	}

	total, _ := repo.CountByAccount(ctx, 1)
	if total != 4 {
		t.Errorf("总数 = %d, want 4", total)
	}

	// 新发现的都是待同步
	pending, _ := repo.CountPending(ctx, 1)
	if pending != 4 {
		t.Errorf("待同步数 = %d, want 4", pending)
	}
}

// ==================== 详情覆盖 ====================

func TestUpsertDetailIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	if _, err := repo.InsertDiscovered(ctx, 1, []string{"MLB1"}); err != nil {
		t.Fatalf("发现插入失败: %v", err)
	}

	item := &model.Item{
		AccountID:         1,
		MeliItemID:        "MLB1",
		Title:             "陶瓷马克杯",
		Price:             49.9,
		CurrencyID:        "BRL",
		Status:            model.ItemStatusActive,
		SoldQuantity:      10,
		AvailableQuantity: 5,
		Tags:              pq.StringArray{"good_quality_picture", "immediate_payment"},
	}
	if err := repo.UpsertDetail(ctx, item); err != nil {
		t.Fatalf("首次详情写入失败: %v", err)
	}

	// 详情写入后不再是待同步
	pending, _ := repo.CountPending(ctx, 1)
	if pending != 0 {
		t.Errorf("待同步数 = %d, want 0", pending)
	}

	// 同样的数据再写一遍，行数不变，内容覆盖
	item2 := &model.Item{
		AccountID:    1,
		MeliItemID:   "MLB1",
		Title:        "陶瓷马克杯（改名）",
		Price:        59.9,
		CurrencyID:   "BRL",
		Status:       model.ItemStatusPaused,
		SoldQuantity: 12,
	}
	if err := repo.UpsertDetail(ctx, item2); err != nil {
		t.Fatalf("二次详情写入失败: %v", err)
	}

	total, _ := repo.CountByAccount(ctx, 1)
	if total != 1 {
		t.Errorf("总数 = %d, want 1", total)
	}

	saved, err := repo.GetByMeliID(ctx, "MLB1")
	if err != nil || saved == nil {
		t.Fatalf("查询失败: %v", err)
	}
	if saved.Title != "陶瓷马克杯（改名）" {
		t.Errorf("标题 = %q, 覆盖未生效", saved.Title)
	}
	if saved.Price != 59.9 {
		t.Errorf("价格 = %v, want 59.9", saved.Price)
	}
	if saved.Status != model.ItemStatusPaused {
		t.Errorf("状态 = %q, want paused", saved.Status)
	}
	if saved.SyncFlag != model.ItemFlagSynced {
		t.Errorf("sync_flag = %d, want %d", saved.SyncFlag, model.ItemFlagSynced)
	}
}

func TestUpsertDetailKeepsFirstDateCreated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.UpsertDetail(ctx, &model.Item{
		AccountID:   1,
		MeliItemID:  "MLB1",
		Title:       "商品",
		DateCreated: timePtr(first),
	}); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}

	// 第二次带不同的创建时间，不应覆盖首次的值
	later := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.UpsertDetail(ctx, &model.Item{
		AccountID:   1,
		MeliItemID:  "MLB1",
		Title:       "商品",
		DateCreated: timePtr(later),
	}); err != nil {
		t.Fatalf("二次写入失败: %v", err)
	}

	saved, _ := repo.GetByMeliID(ctx, "MLB1")
	if saved.DateCreated == nil {
		t.Fatal("date_created 不应为空")
	}
	if !saved.DateCreated.Equal(first) {
		t.Errorf("date_created = %v, 应保持首次写入的 %v", saved.DateCreated, first)
	}

	// 首次为空、后续有值的情况要能补上
	if err := repo.UpsertDetail(ctx, &model.Item{
		AccountID:  1,
		MeliItemID: "MLB2",
		Title:      "另一个商品",
	}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := repo.UpsertDetail(ctx, &model.Item{
		AccountID:   1,
		MeliItemID:  "MLB2",
		Title:       "另一个商品",
		DateCreated: timePtr(first),
	}); err != nil {
		t.Fatalf("补写失败: %v", err)
	}

	saved2, _ := repo.GetByMeliID(ctx, "MLB2")
	if saved2.DateCreated == nil || !saved2.DateCreated.Equal(first) {
		t.Errorf("空值应被后续写入补上, got %v", saved2.DateCreated)
	}
}

// ==================== 待同步选取 ====================

func TestListPendingIncludesUpdateRequested(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	if _, err := repo.InsertDiscovered(ctx, 1, []string{"MLB1", "MLB2"}); err != nil {
		t.Fatalf("发现插入失败: %v", err)
	}
	if err := repo.UpsertDetail(ctx, &model.Item{AccountID: 1, MeliItemID: "MLB1", Title: "a"}); err != nil {
		t.Fatalf("详情写入失败: %v", err)
	}
	if err := repo.UpsertDetail(ctx, &model.Item{AccountID: 1, MeliItemID: "MLB2", Title: "b"}); err != nil {
		t.Fatalf("详情写入失败: %v", err)
	}

	// 本地操作后打上待刷新标记
	if err := repo.MarkUpdateRequested(ctx, []string{"MLB2"}); err != nil {
		t.Fatalf("打标失败: %v", err)
	}

	pending, err := repo.ListPending(ctx, 1, 10)
	if err != nil {
		t.Fatalf("查询待同步失败: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("待同步数 = %d, want 1", len(pending))
	}
	if pending[0].MeliItemID != "MLB2" {
		t.Errorf("待同步商品 = %s, want MLB2", pending[0].MeliItemID)
	}
	if pending[0].SyncFlag != model.ItemFlagUpdateRequested {
		t.Errorf("sync_flag = %d, want %d", pending[0].SyncFlag, model.ItemFlagUpdateRequested)
	}
}

// ==================== 列表过滤 ====================

func TestListFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	free := true
	items := []*model.Item{
		{AccountID: 1, MeliItemID: "MLB1", Title: "快递杯子", Status: "active", LogisticType: "fulfillment", FreeShipping: true, SoldQuantity: 100, LastSaleAt: timePtr(time.Now().AddDate(0, 0, -2))},
		{AccountID: 1, MeliItemID: "MLB2", Title: "慢递盘子", Status: "active", LogisticType: "drop_off", SoldQuantity: 5, LastSaleAt: timePtr(time.Now().AddDate(0, 0, -90))},
		{AccountID: 1, MeliItemID: "MLB3", Title: "下架勺子", Status: "paused", LogisticType: "fulfillment", SoldQuantity: 1},
		{AccountID: 2, MeliItemID: "MLB4", Title: "别家杯子", Status: "active", LogisticType: "fulfillment"},
	}
	for _, it := range items {
		if err := repo.UpsertDetail(ctx, it); err != nil {
			t.Fatalf("写入 %s 失败: %v", it.MeliItemID, err)
		}
	}

	got, total, err := repo.List(ctx, ItemFilter{AccountID: 1, Status: "active"})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Errorf("active 商品数 = %d, want 2", total)
	}
	// 按销量倒序
	if got[0].MeliItemID != "MLB1" {
		t.Errorf("第一条 = %s, 应按销量排序", got[0].MeliItemID)
	}

	_, total, _ = repo.List(ctx, ItemFilter{AccountID: 1, FreeShipping: &free})
	if total != 1 {
		t.Errorf("包邮商品数 = %d, want 1", total)
	}

	// 30 天没成交的（含从未成交的）
	_, total, _ = repo.List(ctx, ItemFilter{AccountID: 1, StaleSaleDays: 30})
	if total != 2 {
		t.Errorf("滞销商品数 = %d, want 2", total)
	}

	_, total, _ = repo.List(ctx, ItemFilter{Keyword: "杯子"})
	if total != 2 {
		t.Errorf("关键词命中数 = %d, want 2", total)
	}
}
