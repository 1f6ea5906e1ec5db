package meli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// OAuthConfig 美客多应用凭证
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthBaseURL  string // 例如 https://auth.mercadolivre.com.br
	APIBaseURL   string // 例如 https://api.mercadolibre.com
}

// OAuthClient 负责授权码换 token 和 refresh token 轮换。
// 与业务 API 走的 Dispatcher 分开，token 端点用 resty 自带的重试。
type OAuthClient struct {
	http *resty.Client
	cfg  OAuthConfig
}

// NewOAuthClient 创建 OAuth 客户端
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &OAuthClient{
		http: client,
		cfg:  cfg,
	}
}

// AuthorizationURL 生成授权页地址，state 用于回调校验
func (c *OAuthClient) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("state", state)
	return c.cfg.AuthBaseURL + "/authorization?" + params.Encode()
}

// ExchangeCode 授权码换 token
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*TokenResp, error) {
	return c.requestToken(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  c.cfg.RedirectURI,
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	})
}

// Refresh 用 refresh token 换新 token。美客多每次都会轮换
// refresh token，调用方必须立即持久化返回的新值。
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResp, error) {
	return c.requestToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	})
}

func (c *OAuthClient) requestToken(ctx context.Context, form map[string]string) (*TokenResp, error) {
	var token TokenResp

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(form).
		SetResult(&token).
		Post(c.cfg.APIBaseURL + "/oauth/token")
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &AuthError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token 端点返回 200 但缺少 access_token")
	}
	return &token, nil
}

// FetchMe 查询当前 token 对应的卖家信息，授权回调时用来补全账号资料
func (c *OAuthClient) FetchMe(ctx context.Context, accessToken string) (*UserInfo, error) {
	var info UserInfo

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetResult(&info).
		Get(c.cfg.APIBaseURL + "/users/me")
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return &info, nil
}
