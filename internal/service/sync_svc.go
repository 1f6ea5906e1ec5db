package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
	"meli_dev_v1_202609/pkg/meli"
)

// ==================== 配置 ====================

// SyncConfig 同步编排参数
type SyncConfig struct {
	// TickBudget 单个 tick 的时间预算，超过就收尾留给下一轮
	TickBudget time.Duration
	// ScanPageLimit scan 每页条数
	ScanPageLimit int
	// DetailBatchSize multiget 每批条数，上限 20
	DetailBatchSize int
	// MaxPagesPerTick 单 tick 最多扫多少页
	MaxPagesPerTick int
	// MaxDetailBatchesPerTick 单 tick 最多拉多少批详情
	MaxDetailBatchesPerTick int
	// CallInterval 相邻 API 调用之间的间隔，粗粒度限流
	CallInterval time.Duration
	// VisitsWindowDays 访问量统计窗口（天）
	VisitsWindowDays int
	// FreightZips 三个参考地区的探测邮编，依次为东南/东北/南部。
	// 留空表示关闭运费探测。
	FreightZips []string
	// LockTTL 同步锁存活时间，至少要盖住一个完整 tick
	LockTTL time.Duration
}

// DefaultSyncConfig 默认参数
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		TickBudget:              25 * time.Second,
		ScanPageLimit:           50,
		DetailBatchSize:         meli.MaxMultigetIDs,
		MaxPagesPerTick:         40,
		MaxDetailBatchesPerTick: 20,
		CallInterval:            100 * time.Millisecond,
		VisitsWindowDays:        30,
		FreightZips:             nil,
		LockTTL:                 90 * time.Second,
	}
}

// ProgressReport 一次 tick 的执行结果
type ProgressReport struct {
	AccountID  int64  `json:"account_id"`
	SellerID   int64  `json:"seller_id"`
	Discovered int    `json:"discovered"` // 本 tick 扫到的商品 ID 数
	Processed  int64  `json:"processed"`  // 已同步详情的商品数（全量）
	Total      int64  `json:"total"`      // 镜像里该账号的商品总数
	Completed  bool   `json:"completed"`  // 本轮同步是否已结束
	Message    string `json:"message"`
}

// ==================== 编排服务 ====================

// SyncService 增量同步编排。每次 RunTick 在时间预算内尽量推进一个
// 账号的同步，进度落库，下一个 tick 从断点继续。
type SyncService struct {
	accountRepo repository.AccountRepository
	itemRepo    repository.ItemRepository
	lockRepo    repository.SyncLockRepository
	client      *meli.Client
	auth        *AuthService
	mirror      *MirrorService
	cfg         SyncConfig
}

// NewSyncService 创建同步服务
func NewSyncService(
	accountRepo repository.AccountRepository,
	itemRepo repository.ItemRepository,
	lockRepo repository.SyncLockRepository,
	client *meli.Client,
	auth *AuthService,
	mirror *MirrorService,
	cfg SyncConfig,
) *SyncService {
	if cfg.DetailBatchSize <= 0 || cfg.DetailBatchSize > meli.MaxMultigetIDs {
		cfg.DetailBatchSize = meli.MaxMultigetIDs
	}
	return &SyncService{
		accountRepo: accountRepo,
		itemRepo:    itemRepo,
		lockRepo:    lockRepo,
		client:      client,
		auth:        auth,
		mirror:      mirror,
		cfg:         cfg,
	}
}

// RequestSync 请求对账号做一轮全量同步。同步中的账号不允许重复请求。
func (s *SyncService) RequestSync(ctx context.Context, accountID int64) error {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.SyncStatus == model.SyncStateSyncing || account.SyncStatus == model.SyncStateRequested {
		return fmt.Errorf("账号 %d 已在同步中", accountID)
	}
	return s.accountRepo.UpdateSyncState(ctx, accountID, model.SyncStateRequested, "同步已请求")
}

// RunTick 选出优先级最高的账号推进一个 tick
func (s *SyncService) RunTick(ctx context.Context) (*ProgressReport, error) {
	account, err := s.accountRepo.PickNextForSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("选取同步账号失败: %w", err)
	}
	if account == nil {
		return &ProgressReport{Completed: true, Message: "没有可同步的账号"}, nil
	}
	return s.runTickFor(ctx, account)
}

// RunTickForAccount 对指定账号推进一个 tick
func (s *SyncService) RunTickForAccount(ctx context.Context, accountID int64) (*ProgressReport, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.runTickFor(ctx, account)
}

func (s *SyncService) runTickFor(ctx context.Context, account *model.Account) (*ProgressReport, error) {
	report := &ProgressReport{
		AccountID: account.ID,
		SellerID:  account.MeliSellerID,
	}

	// 全局只允许一个 tick 在跑
	owner := uuid.NewString()
	acquired, err := s.lockRepo.Acquire(ctx, model.LockNameSyncTick, owner, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("获取同步锁失败: %w", err)
	}
	if !acquired {
		report.Message = "另一个同步 tick 正在运行，本轮跳过"
		return report, nil
	}
	defer func() {
		if rerr := s.lockRepo.Release(context.WithoutCancel(ctx), model.LockNameSyncTick, owner); rerr != nil {
			log.Printf("[SyncService] 释放同步锁失败: %v", rerr)
		}
	}()

	started := time.Now()
	expired := func() bool { return time.Since(started) >= s.cfg.TickBudget }

	// 预算耗尽（包括预算为 0）直接返回，不碰任何账号状态
	if expired() {
		report.Message = "时间预算耗尽"
		return report, nil
	}

	token, err := s.auth.EnsureFreshToken(ctx, account)
	if err != nil {
		return s.failTick(ctx, account, report, fmt.Errorf("token 不可用: %w", err))
	}

	// 静止状态的账号被调度选中，等价于一次定时发起的同步请求
	if account.AtRest() {
		if err := s.accountRepo.UpdateSyncState(ctx, account.ID, model.SyncStateRequested, "定时同步"); err != nil {
			return nil, err
		}
		account.SyncStatus = model.SyncStateRequested
	}

	// REQUESTED：游标置为空串哨兵，从头开始新一轮发现。
	// 空串表示"发现阶段已启动、还在首页"，只有扫到尾页才清成 NULL，
	// 首页就失败的账号下个 tick 仍会进发现阶段，而不是带着空镜像直接完成
	if account.SyncStatus == model.SyncStateRequested {
		sentinel := ""
		if err := s.accountRepo.SetCursor(ctx, account.ID, &sentinel); err != nil {
			return nil, err
		}
		account.ScrollCursor = &sentinel
		if err := s.accountRepo.UpdateSyncState(ctx, account.ID, model.SyncStateSyncing, "发现阶段开始"); err != nil {
			return nil, err
		}
		account.SyncStatus = model.SyncStateSyncing
	}

	// 游标非 NULL 说明发现阶段没走完；SYNCING 且游标为 NULL 才进详情阶段
	if account.ScrollCursor != nil {
		done, err := s.runDiscovery(ctx, account, token, report, expired)
		if err != nil {
			if meli.IsAuthError(err) {
				return s.failTick(ctx, account, report, err)
			}
			// 可恢复错误：保持 SYNCING，下个 tick 续跑
			report.Message = fmt.Sprintf("发现阶段中断: %v", err)
			s.touch(ctx, account.ID)
			return report, err
		}
		if !done {
			report.Message = "发现阶段未完成，下个 tick 继续"
			s.touch(ctx, account.ID)
			return report, nil
		}
	}

	completed, err := s.runDetailPhase(ctx, account, token, report, expired)
	if err != nil {
		if meli.IsAuthError(err) {
			return s.failTick(ctx, account, report, err)
		}
		report.Message = fmt.Sprintf("详情阶段中断: %v", err)
		s.touch(ctx, account.ID)
		return report, err
	}

	s.fillCounts(ctx, account.ID, report)
	if completed {
		report.Completed = true
		report.Message = fmt.Sprintf("同步完成，共 %d 个商品", report.Total)
		if err := s.accountRepo.UpdateSyncState(ctx, account.ID, model.SyncStateCompleted, report.Message); err != nil {
			return nil, err
		}
	} else {
		report.Message = fmt.Sprintf("详情阶段进行中 %d/%d", report.Processed, report.Total)
		if err := s.accountRepo.UpdateSyncState(ctx, account.ID, model.SyncStateSyncing, report.Message); err != nil {
			return nil, err
		}
	}
	s.touch(ctx, account.ID)
	return report, nil
}

// ==================== 发现阶段 ====================

// runDiscovery 分页扫描卖家目录，每页的游标都落库，保证可断点续扫。
// 返回 true 表示发现阶段已走到尾页。
func (s *SyncService) runDiscovery(ctx context.Context, account *model.Account, token string, report *ProgressReport, expired func() bool) (bool, error) {
	cursor := ""
	if account.ScrollCursor != nil {
		cursor = *account.ScrollCursor
	}

	for pages := 0; pages < s.cfg.MaxPagesPerTick; pages++ {
		if expired() || ctx.Err() != nil {
			return false, ctx.Err()
		}

		page, err := s.client.ScanCatalog(ctx, account.ID, account.MeliSellerID, token, cursor, s.cfg.ScanPageLimit)
		if errors.Is(err, meli.ErrCursorExpired) {
			// 游标失效只能从头重扫。已发现的 ID 是幂等插入，不会重复；
			// 落库的是空串哨兵而不是 NULL，重扫途中断掉也还在发现阶段
			log.Printf("[SyncService] 账号 %d 游标失效，发现阶段重新开始", account.ID)
			cursor = ""
			sentinel := ""
			if err := s.accountRepo.SetCursor(ctx, account.ID, &sentinel); err != nil {
				return false, err
			}
			account.ScrollCursor = &sentinel
			continue
		}
		if err != nil {
			return false, err
		}

		inserted, err := s.itemRepo.InsertDiscovered(ctx, account.ID, page.Results)
		if err != nil {
			return false, fmt.Errorf("写入发现结果失败: %w", err)
		}
		report.Discovered += len(page.Results)
		if inserted > 0 {
			log.Printf("[SyncService] 账号 %d 新发现 %d 个商品", account.ID, inserted)
		}

		// 尾页：没有更多结果或服务端不再给游标
		if len(page.Results) == 0 || page.ScrollID == nil {
			if err := s.accountRepo.SetCursor(ctx, account.ID, nil); err != nil {
				return false, err
			}
			account.ScrollCursor = nil
			return true, nil
		}

		cursor = *page.ScrollID
		if err := s.accountRepo.SetCursor(ctx, account.ID, page.ScrollID); err != nil {
			return false, err
		}
		account.ScrollCursor = page.ScrollID

		s.pace(ctx)
	}
	return false, nil
}

// ==================== 详情阶段 ====================

// runDetailPhase 分批拉取待同步商品的详情并写入镜像。
// 返回 true 表示队列清空，本轮同步结束。
func (s *SyncService) runDetailPhase(ctx context.Context, account *model.Account, token string, report *ProgressReport, expired func() bool) (bool, error) {
	for batches := 0; batches < s.cfg.MaxDetailBatchesPerTick; batches++ {
		if expired() || ctx.Err() != nil {
			return false, ctx.Err()
		}

		pending, err := s.itemRepo.ListPending(ctx, account.ID, s.cfg.DetailBatchSize)
		if err != nil {
			return false, err
		}
		if len(pending) == 0 {
			return true, nil
		}

		ids := make([]string, 0, len(pending))
		for _, item := range pending {
			ids = append(ids, item.MeliItemID)
		}

		results, err := s.client.FetchDetails(ctx, account.ID, token, ids)
		if err != nil {
			return false, err
		}

		for _, res := range results {
			if res.Err != nil || res.Detail == nil {
				// 单个商品失败不影响整批，保持 pending 下轮再试
				id := "?"
				if res.Detail != nil {
					id = res.Detail.ID
				}
				log.Printf("[SyncService] 账号 %d 商品 %s 详情失败 (code=%d): %v", account.ID, id, res.Code, res.Err)
				continue
			}
			if err := s.enrichAndStore(ctx, account, token, res.Detail); err != nil {
				log.Printf("[SyncService] 账号 %d 商品 %s 落库失败: %v", account.ID, res.Detail.ID, err)
				if merr := s.itemRepo.MarkError(ctx, res.Detail.ID, err.Error()); merr != nil {
					log.Printf("[SyncService] 记录商品 %s 错误失败: %v", res.Detail.ID, merr)
				}
			}
		}

		s.pace(ctx)
	}
	return false, nil
}

// enrichAndStore 拉增强数据（访问量、最近成交、运费）并写入镜像
func (s *SyncService) enrichAndStore(ctx context.Context, account *model.Account, token string, detail *meli.ItemDetail) error {
	now := time.Now()
	visits := s.client.FetchVisits(ctx, account.ID, token, detail.ID,
		now.AddDate(0, 0, -s.cfg.VisitsWindowDays), now)

	// 没卖出过就不用查订单，省一次调用
	var lastSale *time.Time
	if detail.SoldQuantity > 0 {
		sale, err := s.client.FetchLastSaleDate(ctx, account.ID, account.MeliSellerID, token, detail.ID)
		if err != nil {
			log.Printf("[SyncService] 商品 %s 最近成交查询失败: %v", detail.ID, err)
		} else {
			lastSale = sale
		}
	}

	var freight *FreightInfo
	if len(s.cfg.FreightZips) > 0 && detail.Shipping.Mode != "" {
		freight = s.probeFreight(ctx, account.ID, token, detail.ID)
	}

	return s.mirror.UpsertItem(ctx, account.ID, detail, visits, lastSale, freight)
}

// probeFreight 依次探测配置的参考邮编，失败的地区留空。
// 计费重量取第一个给出非零重量的档位
func (s *SyncService) probeFreight(ctx context.Context, accountID int64, token, itemID string) *FreightInfo {
	info := &FreightInfo{}
	targets := []**float64{&info.Sudeste, &info.Nordeste, &info.Sul}

	for i, zip := range s.cfg.FreightZips {
		if i >= len(targets) {
			break
		}
		cost, weight, err := s.client.FetchShippingCost(ctx, accountID, token, itemID, zip)
		if err != nil {
			log.Printf("[SyncService] 商品 %s 邮编 %s 运费探测失败: %v", itemID, zip, err)
			continue
		}
		c := cost
		*targets[i] = &c
		if info.BillableWeight == nil && weight > 0 {
			w := weight
			info.BillableWeight = &w
		}
	}
	return info
}

// ==================== 辅助 ====================

// failTick 致命错误收尾：状态置 ERROR，错误原样返回
func (s *SyncService) failTick(ctx context.Context, account *model.Account, report *ProgressReport, cause error) (*ProgressReport, error) {
	report.Message = cause.Error()
	if err := s.accountRepo.UpdateSyncState(ctx, account.ID, model.SyncStateError, report.Message); err != nil {
		log.Printf("[SyncService] 更新账号 %d 错误状态失败: %v", account.ID, err)
	}
	s.touch(ctx, account.ID)
	return report, cause
}

func (s *SyncService) fillCounts(ctx context.Context, accountID int64, report *ProgressReport) {
	total, err := s.itemRepo.CountByAccount(ctx, accountID)
	if err != nil {
		log.Printf("[SyncService] 统计账号 %d 商品总数失败: %v", accountID, err)
		return
	}
	pending, err := s.itemRepo.CountPending(ctx, accountID)
	if err != nil {
		log.Printf("[SyncService] 统计账号 %d 待同步数失败: %v", accountID, err)
		return
	}
	report.Total = total
	report.Processed = total - pending
}

func (s *SyncService) touch(ctx context.Context, accountID int64) {
	if err := s.accountRepo.TouchLastRun(ctx, accountID); err != nil {
		log.Printf("[SyncService] 更新账号 %d 运行时间失败: %v", accountID, err)
	}
}

func (s *SyncService) pace(ctx context.Context) {
	if s.cfg.CallInterval <= 0 {
		return
	}
	select {
	case <-time.After(s.cfg.CallInterval):
	case <-ctx.Done():
	}
}
