package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
	"meli_dev_v1_202609/pkg/meli"
	"meli_dev_v1_202609/pkg/net"
)

// ==================== 测试基建 ====================

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

// fakeMeli 模拟美客多开放平台，按路径分发
type fakeMeli struct {
	mu sync.Mutex

	// scanPages 按游标给响应，首页的 key 是空串。查不到的游标返回 404
	scanPages map[string]string
	// detailOverride 指定某个商品在 multiget 里的返回，缺省生成成功详情
	detailOverride map[string]string
	// soldQuantities 指定商品的销量，缺省 0
	soldQuantities map[string]int

	visitsBody   string
	ordersBody   string
	shippingBody string
	tokenStatus  int
	tokenBody    string

	scanCursors   []string
	ordersCalls   int
	visitsCalls   int
	detailCalls   int
	shippingCalls int
}

func newFakeMeli() *fakeMeli {
	return &fakeMeli{
		scanPages:      map[string]string{},
		detailOverride: map[string]string{},
		soldQuantities: map[string]int{},
		visitsBody:     `{"total_visits":5}`,
		ordersBody:     `{"results":[{"date_closed":"2026-07-01T10:00:00Z"}]}`,
		shippingBody:   `{"options":[{"cost":22.9,"billable_weight":500}]}`,
		tokenStatus:    200,
		tokenBody:      `{"access_token":"refreshed-access","refresh_token":"refreshed-refresh","expires_in":21600,"user_id":123}`,
	}
}

func (f *fakeMeli) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/oauth/token":
		w.WriteHeader(f.tokenStatus)
		fmt.Fprint(w, f.tokenBody)

	case strings.Contains(path, "/items/search"):
		cursor := r.URL.Query().Get("scroll_id")
		f.scanCursors = append(f.scanCursors, cursor)
		body, ok := f.scanPages[cursor]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"scroll not found"}`)
			return
		}
		fmt.Fprint(w, body)

	case path == "/items":
		f.detailCalls++
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		entries := make([]string, 0, len(ids))
		for _, id := range ids {
			if override, ok := f.detailOverride[id]; ok {
				entries = append(entries, override)
				continue
			}
			entries = append(entries, fmt.Sprintf(
				`{"code":200,"body":{"id":"%s","title":"商品 %s","price":19.9,"currency_id":"BRL","status":"active","sold_quantity":%d,"available_quantity":3,"date_created":"2024-01-10T08:00:00Z","shipping":{"mode":"me2","logistic_type":"drop_off","free_shipping":false}}}`,
				id, id, f.soldQuantities[id]))
		}
		fmt.Fprint(w, "["+strings.Join(entries, ",")+"]")

	case strings.HasSuffix(path, "/shipping_options"):
		f.shippingCalls++
		fmt.Fprint(w, f.shippingBody)

	case strings.HasSuffix(path, "/visits"):
		f.visitsCalls++
		fmt.Fprint(w, f.visitsBody)

	case path == "/orders/search":
		f.ordersCalls++
		fmt.Fprint(w, f.ordersBody)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type syncTestEnv struct {
	db          *gorm.DB
	accountRepo repository.AccountRepository
	itemRepo    repository.ItemRepository
	lockRepo    repository.SyncLockRepository
	svc         *SyncService
}

func setupSyncTest(t *testing.T, fake *fakeMeli, tweak func(*SyncConfig)) *syncTestEnv {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	db := setupTestDB(t)
	accountRepo := repository.NewAccountRepository(db)
	itemRepo := repository.NewItemRepository(db)
	lockRepo := repository.NewSyncLockRepository(db)

	oauth := meli.NewOAuthClient(meli.OAuthConfig{
		ClientID:     "app",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/callback",
		AuthBaseURL:  server.URL,
		APIBaseURL:   server.URL,
	})
	client := meli.NewClient(net.NewDispatcher(net.BackoffPolicy{MaxRetries: 0}), server.URL)

	cfg := DefaultSyncConfig()
	cfg.TickBudget = 10 * time.Second
	cfg.CallInterval = 0
	if tweak != nil {
		tweak(&cfg)
	}

	auth := NewAuthService(accountRepo, oauth)
	mirror := NewMirrorService(itemRepo)
	svc := NewSyncService(accountRepo, itemRepo, lockRepo, client, auth, mirror, cfg)

	return &syncTestEnv{
		db:          db,
		accountRepo: accountRepo,
		itemRepo:    itemRepo,
		lockRepo:    lockRepo,
		svc:         svc,
	}
}

// makeAccount 预置一个 token 还很新鲜的账号
func (e *syncTestEnv) makeAccount(t *testing.T, syncStatus string) *model.Account {
	t.Helper()

	account := &model.Account{
		MeliSellerID:   123,
		Nickname:       "测试卖家",
		AccessToken:    "fresh-access",
		RefreshToken:   "fresh-refresh",
		TokenExpiresAt: time.Now().Add(6 * time.Hour),
		TokenStatus:    model.TokenStatusValid,
		SyncStatus:     syncStatus,
	}
	if err := e.accountRepo.Create(context.Background(), account); err != nil {
		t.Fatalf("预置账号失败: %v", err)
	}
	return account
}

func (e *syncTestEnv) reloadAccount(t *testing.T, id int64) *model.Account {
	t.Helper()
	account, err := e.accountRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("重查账号失败: %v", err)
	}
	return account
}

// ==================== 完整一轮同步 ====================

func TestRunTickFullPass(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1","MLB2"],"scroll_id":"c1"}`
	fake.scanPages["c1"] = `{"results":["MLB3"],"scroll_id":null}`

	env := setupSyncTest(t, fake, nil)
	account := env.makeAccount(t, model.SyncStateRequested)

	report, err := env.svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick 失败: %v", err)
	}
	if !report.Completed {
		t.Fatalf("预算充足时一个 tick 应跑完整轮, report=%+v", report)
	}
	if report.Discovered != 3 {
		t.Errorf("发现数 = %d, want 3", report.Discovered)
	}
	if report.Processed != 3 || report.Total != 3 {
		t.Errorf("进度 = %d/%d, want 3/3", report.Processed, report.Total)
	}

	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateCompleted {
		t.Errorf("状态 = %s, want COMPLETED", saved.SyncStatus)
	}
	if saved.ScrollCursor != nil {
		t.Errorf("完成后游标应清空, got %v", *saved.ScrollCursor)
	}

	item, _ := env.itemRepo.GetByMeliID(context.Background(), "MLB2")
	if item == nil || item.SyncFlag != model.ItemFlagSynced {
		t.Fatalf("商品应已同步, got %+v", item)
	}
	if item.Title != "商品 MLB2" {
		t.Errorf("标题 = %q", item.Title)
	}
	if item.VisitCount != 5 {
		t.Errorf("访问量 = %d, want 5", item.VisitCount)
	}
	if item.DateCreated == nil {
		t.Error("date_created 应已写入")
	}
}

// 再跑一轮应幂等：行数不变，内容刷新
func TestRunTickIdempotentSecondPass(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1","MLB2"],"scroll_id":null}`

	env := setupSyncTest(t, fake, nil)
	account := env.makeAccount(t, model.SyncStateRequested)
	ctx := context.Background()

	if _, err := env.svc.RunTick(ctx); err != nil {
		t.Fatalf("第一轮失败: %v", err)
	}

	// 完成后的账号会被再次选中做例行刷新
	report, err := env.svc.RunTick(ctx)
	if err != nil {
		t.Fatalf("第二轮失败: %v", err)
	}
	if !report.Completed {
		t.Fatal("第二轮也应完成")
	}

	total, _ := env.itemRepo.CountByAccount(ctx, account.ID)
	if total != 2 {
		t.Errorf("两轮后总数 = %d, want 2", total)
	}
}

// ==================== 游标断点与失效 ====================

func TestRunTickCursorResume(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1"],"scroll_id":"c1"}`
	fake.scanPages["c1"] = `{"results":["MLB2"],"scroll_id":null}`

	// 每个 tick 只允许扫一页，强制跨 tick 续扫
	env := setupSyncTest(t, fake, func(cfg *SyncConfig) {
		cfg.MaxPagesPerTick = 1
		cfg.MaxDetailBatchesPerTick = 0
	})
	account := env.makeAccount(t, model.SyncStateRequested)
	ctx := context.Background()

	report, err := env.svc.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick1 失败: %v", err)
	}
	if report.Completed {
		t.Fatal("tick1 不应完成")
	}

	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateSyncing {
		t.Fatalf("状态 = %s, want SYNCING", saved.SyncStatus)
	}
	if saved.ScrollCursor == nil || *saved.ScrollCursor != "c1" {
		t.Fatalf("游标应落库为 c1, got %v", saved.ScrollCursor)
	}

	if _, err := env.svc.RunTick(ctx); err != nil {
		t.Fatalf("tick2 失败: %v", err)
	}

	// 第二个 tick 应带着 c1 续扫，而不是从头再来
	if len(fake.scanCursors) != 2 || fake.scanCursors[1] != "c1" {
		t.Fatalf("scan 游标序列 = %v, want [\"\", \"c1\"]", fake.scanCursors)
	}

	saved = env.reloadAccount(t, account.ID)
	if saved.ScrollCursor != nil {
		t.Errorf("发现完成后游标应清空, got %v", *saved.ScrollCursor)
	}
	total, _ := env.itemRepo.CountByAccount(ctx, account.ID)
	if total != 2 {
		t.Errorf("发现总数 = %d, want 2", total)
	}
}

func TestRunTickCursorExpiredRestartsDiscovery(t *testing.T) {
	fake := newFakeMeli()
	// "stale" 不在表里，服务端 404；从头重扫给全量
	fake.scanPages[""] = `{"results":["MLB1","MLB2"],"scroll_id":null}`

	env := setupSyncTest(t, fake, nil)
	account := env.makeAccount(t, model.SyncStateSyncing)

	// 预置半途的游标和已发现的商品
	stale := "stale"
	if err := env.accountRepo.SetCursor(context.Background(), account.ID, &stale); err != nil {
		t.Fatalf("预置游标失败: %v", err)
	}
	if _, err := env.itemRepo.InsertDiscovered(context.Background(), account.ID, []string{"MLB1"}); err != nil {
		t.Fatalf("预置发现失败: %v", err)
	}

	report, err := env.svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick 失败: %v", err)
	}
	if !report.Completed {
		t.Fatalf("重扫后应完成, report=%+v", report)
	}

	// 先试 stale 游标，失效后从头扫
	if len(fake.scanCursors) != 2 || fake.scanCursors[0] != "stale" || fake.scanCursors[1] != "" {
		t.Fatalf("scan 游标序列 = %v, want [\"stale\", \"\"]", fake.scanCursors)
	}

	// 重扫不会造成重复行
	total, _ := env.itemRepo.CountByAccount(context.Background(), account.ID)
	if total != 2 {
		t.Errorf("总数 = %d, want 2", total)
	}
}

func TestRunTickRescansAfterFailedFirstPage(t *testing.T) {
	// 首页都没扫到就失败：空表让所有 scan 请求 404
	fake := newFakeMeli()

	env := setupSyncTest(t, fake, nil)
	account := env.makeAccount(t, model.SyncStateRequested)
	ctx := context.Background()

	if _, err := env.svc.RunTick(ctx); err == nil {
		t.Fatal("首页失败的 tick 应返回错误")
	}

	// 失败后仍在发现阶段：SYNCING 且游标非 NULL（空串哨兵）
	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateSyncing {
		t.Fatalf("状态 = %s, want SYNCING", saved.SyncStatus)
	}
	if saved.ScrollCursor == nil || *saved.ScrollCursor != "" {
		t.Fatalf("游标 = %v, 首页失败后应是空串哨兵", saved.ScrollCursor)
	}

	// 服务端恢复后，下个 tick 必须重扫目录而不是直接完成
	fake.scanPages[""] = `{"results":["MLB1","MLB2","MLB3"],"scroll_id":null}`

	report, err := env.svc.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick2 失败: %v", err)
	}
	if !report.Completed {
		t.Fatalf("恢复后应跑完整轮, report=%+v", report)
	}
	if len(fake.scanCursors) != 2 {
		t.Fatalf("scan 调用数 = %d, want 2（每个 tick 各扫一次首页）", len(fake.scanCursors))
	}

	total, _ := env.itemRepo.CountByAccount(ctx, account.ID)
	if total != 3 {
		t.Errorf("镜像商品数 = %d, want 3", total)
	}
	saved = env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateCompleted {
		t.Errorf("状态 = %s, want COMPLETED", saved.SyncStatus)
	}
	if saved.ScrollCursor != nil {
		t.Errorf("完成后游标应清空, got %v", *saved.ScrollCursor)
	}
}

// ==================== 运费探测 ====================

func TestRunTickProbesFreight(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1"],"scroll_id":null}`

	env := setupSyncTest(t, fake, func(cfg *SyncConfig) {
		cfg.FreightZips = []string{"01310-100", "40020-000", "90010-150"}
	})
	env.makeAccount(t, model.SyncStateRequested)

	report, err := env.svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick 失败: %v", err)
	}
	if !report.Completed {
		t.Fatalf("应跑完整轮, report=%+v", report)
	}
	if fake.shippingCalls != 3 {
		t.Errorf("运费探测次数 = %d, want 3（每个参考邮编一次）", fake.shippingCalls)
	}

	item, _ := env.itemRepo.GetByMeliID(context.Background(), "MLB1")
	if item.FreightSudeste != 22.9 || item.FreightNordeste != 22.9 || item.FreightSul != 22.9 {
		t.Errorf("运费 = %v/%v/%v, want 22.9", item.FreightSudeste, item.FreightNordeste, item.FreightSul)
	}
	if item.BillableWeight != 500 {
		t.Errorf("计费重量 = %v, want 500", item.BillableWeight)
	}
	if item.WeightStatus != model.WeightStatusProbed {
		t.Errorf("运费状态 = %q, want probed", item.WeightStatus)
	}
}

// ==================== 订单调用按需 ====================

func TestRunTickSkipsOrdersForUnsoldItems(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1","MLB2"],"scroll_id":null}`
	fake.soldQuantities["MLB1"] = 4
	// MLB2 销量 0

	env := setupSyncTest(t, fake, nil)
	env.makeAccount(t, model.SyncStateRequested)

	if _, err := env.svc.RunTick(context.Background()); err != nil {
		t.Fatalf("tick 失败: %v", err)
	}

	if fake.ordersCalls != 1 {
		t.Errorf("订单查询次数 = %d, 只有销量大于 0 的商品才查", fake.ordersCalls)
	}

	sold, _ := env.itemRepo.GetByMeliID(context.Background(), "MLB1")
	if sold.LastSaleAt == nil {
		t.Error("有销量的商品应写入最近成交时间")
	}
	unsold, _ := env.itemRepo.GetByMeliID(context.Background(), "MLB2")
	if unsold.LastSaleAt != nil {
		t.Error("零销量商品不应有成交时间")
	}
}

// ==================== 预算 ====================

func TestRunTickZeroBudget(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1"],"scroll_id":null}`

	env := setupSyncTest(t, fake, func(cfg *SyncConfig) {
		cfg.TickBudget = 0
	})
	account := env.makeAccount(t, model.SyncStateRequested)

	report, err := env.svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("零预算 tick 不应报错: %v", err)
	}
	if report.Completed {
		t.Fatal("零预算不应标记完成")
	}

	// 没有任何 API 调用、没有状态变化
	if len(fake.scanCursors) != 0 || fake.detailCalls != 0 {
		t.Error("零预算不应发任何请求")
	}
	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateRequested {
		t.Errorf("状态 = %s, 零预算不应改状态", saved.SyncStatus)
	}
}

// ==================== 单品失败不致命 ====================

func TestRunTickPartialDetailFailure(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1","MLB2"],"scroll_id":null}`
	fake.detailOverride["MLB2"] = `{"code":500,"body":{"message":"internal error"}}`

	env := setupSyncTest(t, fake, func(cfg *SyncConfig) {
		// 失败商品会一直留在待同步队列，限制批次数让 tick 能退出
		cfg.MaxDetailBatchesPerTick = 2
	})
	account := env.makeAccount(t, model.SyncStateRequested)

	report, err := env.svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick 失败: %v", err)
	}
	if report.Completed {
		t.Fatal("队列未清空不应完成")
	}

	ok, _ := env.itemRepo.GetByMeliID(context.Background(), "MLB1")
	if ok.SyncFlag != model.ItemFlagSynced {
		t.Errorf("MLB1 应已同步, flag=%d", ok.SyncFlag)
	}
	failed, _ := env.itemRepo.GetByMeliID(context.Background(), "MLB2")
	if failed.SyncFlag != model.ItemFlagPending {
		t.Errorf("MLB2 应保持待同步, flag=%d", failed.SyncFlag)
	}

	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateSyncing {
		t.Errorf("状态 = %s, want SYNCING", saved.SyncStatus)
	}
}

// ==================== 并发互斥 ====================

func TestRunTickLockContention(t *testing.T) {
	fake := newFakeMeli()
	fake.scanPages[""] = `{"results":["MLB1"],"scroll_id":null}`

	env := setupSyncTest(t, fake, nil)
	account := env.makeAccount(t, model.SyncStateRequested)

	// 另一个进程持有锁
	ok, err := env.lockRepo.Acquire(context.Background(), model.LockNameSyncTick, "other-process", time.Minute)
	if err != nil || !ok {
		t.Fatalf("预置外部锁失败: ok=%v err=%v", ok, err)
	}

	report, err := env.svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("锁竞争不应报错: %v", err)
	}
	if report.Completed {
		t.Fatal("没拿到锁不应有任何进展")
	}
	if len(fake.scanCursors) != 0 {
		t.Error("没拿到锁不应发请求")
	}

	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateRequested {
		t.Errorf("状态 = %s, 没拿到锁不应改状态", saved.SyncStatus)
	}
}

// ==================== 授权失败 ====================

func TestRunTickAuthFailureMarksError(t *testing.T) {
	fake := newFakeMeli()
	fake.tokenStatus = http.StatusBadRequest
	fake.tokenBody = `{"error":"invalid_grant"}`

	env := setupSyncTest(t, fake, nil)
	account := env.makeAccount(t, model.SyncStateRequested)

	// token 已过期，逼出一次刷新
	if err := env.db.Model(&model.Account{}).Where("id = ?", account.ID).
		Update("token_expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("预置过期 token 失败: %v", err)
	}

	_, err := env.svc.RunTick(context.Background())
	if err == nil {
		t.Fatal("刷新失败应返回错误")
	}

	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateError {
		t.Errorf("状态 = %s, want ERROR", saved.SyncStatus)
	}
	if saved.TokenStatus != model.TokenStatusInvalid {
		t.Errorf("token 状态 = %s, want invalid", saved.TokenStatus)
	}
	if saved.SyncLastMessage == "" {
		t.Error("错误信息应落库")
	}
}

// ==================== 请求与状态机 ====================

func TestRequestSyncRejectsWhileSyncing(t *testing.T) {
	fake := newFakeMeli()
	env := setupSyncTest(t, fake, nil)
	account := env.makeAccount(t, model.SyncStateSyncing)

	if err := env.svc.RequestSync(context.Background(), account.ID); err == nil {
		t.Fatal("同步中的账号不应允许重复请求")
	}

	if err := env.accountRepo.UpdateSyncState(context.Background(), account.ID, model.SyncStateCompleted, ""); err != nil {
		t.Fatalf("改状态失败: %v", err)
	}
	if err := env.svc.RequestSync(context.Background(), account.ID); err != nil {
		t.Fatalf("完成态的账号应允许再次请求: %v", err)
	}

	saved := env.reloadAccount(t, account.ID)
	if saved.SyncStatus != model.SyncStateRequested {
		t.Errorf("状态 = %s, want REQUESTED", saved.SyncStatus)
	}
}

// REQUESTED 的账号应优先于更久没跑的其他账号
func TestPickNextPrefersRequested(t *testing.T) {
	fake := newFakeMeli()
	env := setupSyncTest(t, fake, nil)
	ctx := context.Background()

	old := &model.Account{
		MeliSellerID: 111, AccessToken: "a", RefreshToken: "r",
		TokenExpiresAt: time.Now().Add(6 * time.Hour),
		SyncStatus:     model.SyncStateCompleted,
		SyncLastRunAt:  timePtrSync(time.Now().AddDate(0, 0, -7)),
	}
	requested := &model.Account{
		MeliSellerID: 222, AccessToken: "a", RefreshToken: "r",
		TokenExpiresAt: time.Now().Add(6 * time.Hour),
		SyncStatus:     model.SyncStateRequested,
		SyncLastRunAt:  timePtrSync(time.Now()),
	}
	if err := env.accountRepo.Create(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := env.accountRepo.Create(ctx, requested); err != nil {
		t.Fatal(err)
	}

	picked, err := env.accountRepo.PickNextForSync(ctx)
	if err != nil {
		t.Fatalf("选取失败: %v", err)
	}
	if picked.MeliSellerID != 222 {
		t.Errorf("选中卖家 = %d, REQUESTED 应优先", picked.MeliSellerID)
	}
}

func timePtrSync(t time.Time) *time.Time {
	return &t
}
