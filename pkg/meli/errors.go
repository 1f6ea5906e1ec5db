package meli

import (
	"errors"
	"fmt"
)

// ErrCursorExpired 表示 scan 游标已失效，发现阶段需要从头重扫
var ErrCursorExpired = errors.New("meli: scroll cursor expired")

// TransportError 网络层错误（连接失败、超时），重试耗尽后返回
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("meli: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError 授权类错误（401/403 或 token 端点非 200），
// 意味着继续调用没有意义，当前账号本轮同步应终止
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("meli: auth error: status=%d body=%s", e.StatusCode, e.Body)
}

// APIError 其他非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meli: api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsAuthError 判断错误链中是否存在授权错误
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransportError 判断错误链中是否存在网络层错误
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
