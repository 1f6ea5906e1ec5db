package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"meli_dev_v1_202609/internal/service"
)

// TokenTask 定时刷新即将过期的 access token，避免同步 tick
// 跑到一半才发现 token 过期白白消耗预算
type TokenTask struct {
	authSvc *service.AuthService
	cron    *cron.Cron

	// Spec 秒级 cron 表达式
	Spec string
	// RefreshWindow 提前多久开始刷新
	RefreshWindow time.Duration
}

// NewTokenTask 创建 token 刷新任务
func NewTokenTask(authSvc *service.AuthService) *TokenTask {
	return &TokenTask{
		authSvc:       authSvc,
		cron:          cron.New(cron.WithSeconds()),
		Spec:          "0 */30 * * * *",
		RefreshWindow: 30 * time.Minute,
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() error {
	if _, err := t.cron.AddFunc(t.Spec, func() {
		t.RefreshAll(context.Background())
	}); err != nil {
		return err
	}

	t.cron.Start()
	log.Printf("[TokenTask] 已启动，cron=%s", t.Spec)
	return nil
}

// Stop 停止定时任务
func (t *TokenTask) Stop() {
	t.cron.Stop()
	log.Println("[TokenTask] 已停止")
}

// RefreshAll 刷新所有即将过期的 token
func (t *TokenTask) RefreshAll(ctx context.Context) {
	refreshed, err := t.authSvc.RefreshExpiring(ctx, t.RefreshWindow)
	if err != nil {
		log.Printf("[TokenTask] 批量刷新失败: %v", err)
		return
	}
	if refreshed > 0 {
		log.Printf("[TokenTask] 本轮刷新了 %d 个账号的 token", refreshed)
	}
}
