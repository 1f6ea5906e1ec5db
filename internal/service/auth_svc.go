package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
	"meli_dev_v1_202609/pkg/meli"
	"meli_dev_v1_202609/pkg/utils"
)

// TokenRefreshBuffer access token 剩余有效期低于该值就提前刷新，
// 避免长 tick 跑到一半 token 过期
const TokenRefreshBuffer = 600 * time.Second

var (
	ErrInvalidState = errors.New("state 校验失败")
)

// AuthService 负责美客多 OAuth 授权和 token 生命周期
type AuthService struct {
	accountRepo repository.AccountRepository
	oauth       *meli.OAuthClient
}

// NewAuthService 创建授权服务
func NewAuthService(accountRepo repository.AccountRepository, oauth *meli.OAuthClient) *AuthService {
	return &AuthService{
		accountRepo: accountRepo,
		oauth:       oauth,
	}
}

// GenerateLoginURL 生成授权页地址，state 写入缓存供回调校验
func (s *AuthService) GenerateLoginURL(ctx context.Context) string {
	state := utils.GenerateRandomString(16)
	utils.SetCache(state, "1")
	return s.oauth.AuthorizationURL(state)
}

// HandleCallback 处理授权回调：校验 state、换 token、补全卖家资料并落库
func (s *AuthService) HandleCallback(ctx context.Context, code, state string) (*model.Account, error) {
	if _, ok := utils.GetCache(state); !ok {
		return nil, ErrInvalidState
	}
	utils.DeleteCache(state)

	token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("授权码换 token 失败: %w", err)
	}

	account := &model.Account{
		MeliSellerID:   token.UserID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
		TokenStatus:    model.TokenStatusValid,
		SyncStatus:     model.SyncStateIdle,
	}

	// 卖家昵称拉不到不影响授权结果
	if info, err := s.oauth.FetchMe(ctx, token.AccessToken); err != nil {
		log.Printf("[AuthService] 拉取卖家资料失败: %v", err)
	} else {
		account.Nickname = info.Nickname
		if info.SiteID != "" {
			account.SiteID = info.SiteID
		}
	}

	if err := s.accountRepo.UpsertBySellerID(ctx, account); err != nil {
		return nil, fmt.Errorf("保存账号失败: %w", err)
	}

	saved, err := s.accountRepo.GetBySellerID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	log.Printf("[AuthService] 账号 %d (卖家 %d) 授权完成", saved.ID, saved.MeliSellerID)
	return saved, nil
}

// EnsureFreshToken 返回一个至少还能用 TokenRefreshBuffer 的 access token。
// 需要刷新时走 refresh token 轮换，新凭证在端点返回后立即落库，
// 缩小崩溃丢失新 refresh token 的窗口。
func (s *AuthService) EnsureFreshToken(ctx context.Context, account *model.Account) (string, error) {
	if account.AccessToken != "" && !account.TokenExpiringWithin(TokenRefreshBuffer) {
		return account.AccessToken, nil
	}

	token, err := s.oauth.Refresh(ctx, account.RefreshToken)
	if err != nil {
		if meli.IsAuthError(err) {
			// refresh token 已失效，标记账号等待重新授权
			if uerr := s.accountRepo.UpdateTokenStatus(ctx, account.ID, model.TokenStatusInvalid); uerr != nil {
				log.Printf("[AuthService] 标记账号 %d token 失效时出错: %v", account.ID, uerr)
			}
		}
		return "", fmt.Errorf("刷新账号 %d token 失败: %w", account.ID, err)
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := s.accountRepo.UpdateToken(ctx, account.ID, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("持久化账号 %d 新 token 失败: %w", account.ID, err)
	}

	account.AccessToken = token.AccessToken
	account.RefreshToken = token.RefreshToken
	account.TokenExpiresAt = expiresAt
	account.TokenStatus = model.TokenStatusValid

	log.Printf("[AuthService] 账号 %d token 已刷新，有效期至 %s", account.ID, expiresAt.Format(time.RFC3339))
	return token.AccessToken, nil
}

// RefreshExpiring 批量刷新即将过期的 token，定时任务调用
func (s *AuthService) RefreshExpiring(ctx context.Context, within time.Duration) (int, error) {
	accounts, err := s.accountRepo.FindExpiringTokens(ctx, within)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range accounts {
		if _, err := s.EnsureFreshToken(ctx, &accounts[i]); err != nil {
			log.Printf("[AuthService] %v", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
