package service

import (
	"context"
	"log"

	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
)

// AccountService 卖家账号管理
type AccountService struct {
	accountRepo repository.AccountRepository
	itemRepo    repository.ItemRepository
}

// NewAccountService 创建账号服务
func NewAccountService(accountRepo repository.AccountRepository, itemRepo repository.ItemRepository) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		itemRepo:    itemRepo,
	}
}

// List 全部账号
func (s *AccountService) List(ctx context.Context) ([]model.Account, error) {
	return s.accountRepo.List(ctx)
}

// Get 单个账号
func (s *AccountService) Get(ctx context.Context, id int64) (*model.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

// Remove 删除账号及其全部商品镜像。硬删除，唯一会清数据的路径。
func (s *AccountService) Remove(ctx context.Context, id int64) error {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	count, err := s.itemRepo.CountByAccount(ctx, id)
	if err != nil {
		return err
	}

	if err := s.accountRepo.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[AccountService] 账号 %d (卖家 %d) 已删除，连带 %d 个商品镜像",
		id, account.MeliSellerID, count)
	return nil
}
