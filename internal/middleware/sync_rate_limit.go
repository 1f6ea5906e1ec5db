package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 同步触发限流 ====================

// 手动触发同步的接口要有冷却时间，防止前端连点把 API 配额打穿。
// 维度是 路由段 + 账号 ID。

type cooldownLimiter struct {
	mu      sync.Mutex
	lastRun map[string]time.Time
}

var limiter = &cooldownLimiter{
	lastRun: make(map[string]time.Time),
}

// check 冷却检查，通过时顺便记录本次执行时间
func (l *cooldownLimiter) check(key string, interval time.Duration) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.lastRun[key]; ok {
		if elapsed := now.Sub(last); elapsed < interval {
			return false, interval - elapsed
		}
	}
	l.lastRun[key] = now
	return true, 0
}

// ResetCooldown 清掉某个 key 的冷却记录，测试和管理接口用
func ResetCooldown(key string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	delete(limiter.lastRun, key)
}

// SyncRateLimit 同步触发接口的冷却中间件。
// 路由里有 :id 参数时按账号维度限流，否则全局限流。
func SyncRateLimit(name string, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := name
		if id := c.Param("id"); id != "" {
			key = fmt.Sprintf("%s:%s", name, id)
		}

		allowed, retryAfter := limiter.check(key, interval)
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": fmt.Sprintf("同步冷却中，请 %d 秒后重试", int(retryAfter.Seconds())+1),
				"data": gin.H{
					"retry_after": int(retryAfter.Seconds()) + 1,
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
