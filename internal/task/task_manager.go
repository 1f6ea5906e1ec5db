package task

import (
	"context"
	"log"

	"meli_dev_v1_202609/internal/service"
)

// TaskError 任务层错误
type TaskError string

func (e TaskError) Error() string {
	return string(e)
}

const ErrTaskDisabled = TaskError("任务未启用")

// TaskManagerConfig 任务开关配置
type TaskManagerConfig struct {
	EnableSyncPump  bool
	EnableTokenTask bool
}

// DefaultTaskManagerConfig 默认全部启用
func DefaultTaskManagerConfig() TaskManagerConfig {
	return TaskManagerConfig{
		EnableSyncPump:  true,
		EnableTokenTask: true,
	}
}

// TaskManager 统一管理所有后台定时任务
type TaskManager struct {
	syncPump  *SyncPumpTask
	tokenTask *TokenTask
	syncSvc   *service.SyncService
	cfg       TaskManagerConfig
}

// NewTaskManager 创建任务管理器
func NewTaskManager(syncSvc *service.SyncService, authSvc *service.AuthService, cfg TaskManagerConfig) *TaskManager {
	return &TaskManager{
		syncPump:  NewSyncPumpTask(syncSvc),
		tokenTask: NewTokenTask(authSvc),
		syncSvc:   syncSvc,
		cfg:       cfg,
	}
}

// Start 启动启用的任务
func (m *TaskManager) Start() error {
	if m.cfg.EnableSyncPump {
		if err := m.syncPump.Start(); err != nil {
			return err
		}
	}
	if m.cfg.EnableTokenTask {
		if err := m.tokenTask.Start(); err != nil {
			return err
		}
	}
	log.Println("[TaskManager] 后台任务已启动")
	return nil
}

// Stop 停止所有任务
func (m *TaskManager) Stop() {
	if m.cfg.EnableSyncPump {
		m.syncPump.Stop()
	}
	if m.cfg.EnableTokenTask {
		m.tokenTask.Stop()
	}
	log.Println("[TaskManager] 后台任务已停止")
}

// TriggerAccountSync 手动触发某账号同步：先标记 REQUESTED，
// 再异步驱动 pump，接口立即返回
func (m *TaskManager) TriggerAccountSync(ctx context.Context, accountID int64) error {
	if !m.cfg.EnableSyncPump {
		return ErrTaskDisabled
	}
	if err := m.syncSvc.RequestSync(ctx, accountID); err != nil {
		return err
	}
	go m.syncPump.PumpAccount(context.Background(), accountID)
	return nil
}

// TriggerTokenRefresh 手动触发 token 批量刷新
func (m *TaskManager) TriggerTokenRefresh(ctx context.Context) error {
	if !m.cfg.EnableTokenTask {
		return ErrTaskDisabled
	}
	go m.tokenTask.RefreshAll(context.Background())
	return nil
}
