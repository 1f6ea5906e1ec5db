package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
	"meli_dev_v1_202609/pkg/meli"
)

// BulkActionResult 批量操作结果
type BulkActionResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// ItemService 看板侧的商品查询和批量操作
type ItemService struct {
	itemRepo    repository.ItemRepository
	accountRepo repository.AccountRepository
	client      *meli.Client
	auth        *AuthService
	// 批量操作时相邻调用的间隔
	callInterval time.Duration
}

// NewItemService 创建商品服务
func NewItemService(itemRepo repository.ItemRepository, accountRepo repository.AccountRepository, client *meli.Client, auth *AuthService) *ItemService {
	return &ItemService{
		itemRepo:     itemRepo,
		accountRepo:  accountRepo,
		client:       client,
		auth:         auth,
		callInterval: 100 * time.Millisecond,
	}
}

// List 按条件分页查询商品镜像
func (s *ItemService) List(ctx context.Context, filter repository.ItemFilter) ([]model.Item, int64, error) {
	return s.itemRepo.List(ctx, filter)
}

// AccountSummary 账号维度的商品统计
func (s *ItemService) AccountSummary(ctx context.Context, accountID int64) (map[string]interface{}, error) {
	total, err := s.itemRepo.CountByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	pending, err := s.itemRepo.CountPending(ctx, accountID)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.itemRepo.CountByStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total":     total,
		"pending":   pending,
		"by_status": byStatus,
	}, nil
}

// BulkSetStatus 批量上下架。对美客多逐个调用，成功的商品打上待刷新
// 标记，等下一轮同步把权威数据拉回来，本地不直接改状态字段。
func (s *ItemService) BulkSetStatus(ctx context.Context, accountID int64, meliItemIDs []string, status string) (*BulkActionResult, error) {
	switch status {
	case model.ItemStatusActive, model.ItemStatusPaused, model.ItemStatusClosed:
	default:
		return nil, fmt.Errorf("不支持的商品状态: %s", status)
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	token, err := s.auth.EnsureFreshToken(ctx, account)
	if err != nil {
		return nil, err
	}

	result := &BulkActionResult{
		Succeeded: make([]string, 0, len(meliItemIDs)),
		Failed:    make(map[string]string),
	}

	for i, itemID := range meliItemIDs {
		if i > 0 {
			select {
			case <-time.After(s.callInterval):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}

		if err := s.client.SetItemStatus(ctx, accountID, token, itemID, status); err != nil {
			log.Printf("[ItemService] 商品 %s 状态改为 %s 失败: %v", itemID, status, err)
			result.Failed[itemID] = err.Error()
			continue
		}
		result.Succeeded = append(result.Succeeded, itemID)
	}

	if err := s.itemRepo.MarkUpdateRequested(ctx, result.Succeeded); err != nil {
		return result, fmt.Errorf("打待刷新标记失败: %w", err)
	}
	log.Printf("[ItemService] 账号 %d 批量改状态 %s: 成功 %d 失败 %d",
		accountID, status, len(result.Succeeded), len(result.Failed))
	return result, nil
}
