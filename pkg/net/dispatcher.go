package net

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// BackoffPolicy 重试退避策略。当前实现为固定间隔重试，
// 参数独立成类型，后续换指数退避不影响调用方。
type BackoffPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultBackoff 默认策略：重试 3 次，间隔 2 秒
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		MaxRetries: 3,
		Delay:      2 * time.Second,
	}
}

// Dispatcher 统一出口，所有美客多 API 请求都经过这里发送。
// accountID 仅用于日志归因，不参与路由。
type Dispatcher interface {
	Send(ctx context.Context, accountID int64, req *http.Request) (*http.Response, error)
}

type httpDispatcher struct {
	client  *http.Client
	backoff BackoffPolicy
}

// NewDispatcher 创建带重试的 HTTP 分发器
func NewDispatcher(backoff BackoffPolicy) Dispatcher {
	return &httpDispatcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: backoff,
	}
}

// Send 发送请求，网络层失败时按退避策略重试。
// 非 2xx 响应不算失败，由调用方根据状态码分类处理。
func (d *httpDispatcher) Send(ctx context.Context, accountID int64, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= d.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Dispatcher] 账号 %d 请求 %s 第 %d 次重试", accountID, req.URL.Path, attempt)
			select {
			case <-time.After(d.backoff.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		// 每次尝试用独立的请求副本，带 body 的请求重试时要重建 body
		cloned := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("重建请求体失败: %w", err)
			}
			cloned.Body = body
		}

		resp, err := d.client.Do(cloned)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("请求重试 %d 次后仍失败: %w", d.backoff.MaxRetries, lastErr)
}
