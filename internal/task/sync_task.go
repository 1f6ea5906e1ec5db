package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"meli_dev_v1_202609/internal/service"
)

// SyncPumpTask 定时驱动同步 tick。每次触发连续跑若干个 tick，
// 直到本轮同步完成或达到上限，单个 tick 的时间预算由同步服务控制。
type SyncPumpTask struct {
	syncSvc *service.SyncService
	cron    *cron.Cron

	// Spec 秒级 cron 表达式
	Spec string
	// MaxTicksPerPump 单次触发最多连续跑多少个 tick
	MaxTicksPerPump int
	// FirstRunDelay 启动后首次执行的延迟
	FirstRunDelay time.Duration

	running sync.Mutex
}

// NewSyncPumpTask 创建同步泵任务
func NewSyncPumpTask(syncSvc *service.SyncService) *SyncPumpTask {
	return &SyncPumpTask{
		syncSvc:         syncSvc,
		cron:            cron.New(cron.WithSeconds()),
		Spec:            "0 */2 * * * *",
		MaxTicksPerPump: 10,
		FirstRunDelay:   30 * time.Second,
	}
}

// Start 启动定时任务
func (t *SyncPumpTask) Start() error {
	// 启动后先跑一轮，不用等第一个整点
	go func() {
		time.Sleep(t.FirstRunDelay)
		t.Pump(context.Background())
	}()

	if _, err := t.cron.AddFunc(t.Spec, func() {
		t.Pump(context.Background())
	}); err != nil {
		return err
	}

	t.cron.Start()
	log.Printf("[SyncPumpTask] 已启动，cron=%s", t.Spec)
	return nil
}

// Stop 停止定时任务
func (t *SyncPumpTask) Stop() {
	t.cron.Stop()
	log.Println("[SyncPumpTask] 已停止")
}

// Pump 连续驱动同步 tick。数据库锁保证了全局互斥，这里的本地锁
// 只是省掉同进程内无意义的空转。
func (t *SyncPumpTask) Pump(ctx context.Context) {
	if !t.running.TryLock() {
		log.Println("[SyncPumpTask] 上一轮 pump 还在跑，跳过")
		return
	}
	defer t.running.Unlock()

	for i := 0; i < t.MaxTicksPerPump; i++ {
		if ctx.Err() != nil {
			return
		}

		report, err := t.syncSvc.RunTick(ctx)
		if err != nil {
			log.Printf("[SyncPumpTask] tick 失败: %v", err)
			return
		}
		log.Printf("[SyncPumpTask] tick 完成: 账号=%d 发现=%d 进度=%d/%d 完成=%v",
			report.AccountID, report.Discovered, report.Processed, report.Total, report.Completed)

		if report.Completed {
			return
		}
	}
}

// PumpAccount 针对单个账号驱动同步，手动触发接口使用
func (t *SyncPumpTask) PumpAccount(ctx context.Context, accountID int64) {
	if !t.running.TryLock() {
		log.Printf("[SyncPumpTask] pump 占用中，账号 %d 等下一轮调度", accountID)
		return
	}
	defer t.running.Unlock()

	for i := 0; i < t.MaxTicksPerPump; i++ {
		if ctx.Err() != nil {
			return
		}

		report, err := t.syncSvc.RunTickForAccount(ctx, accountID)
		if err != nil {
			log.Printf("[SyncPumpTask] 账号 %d tick 失败: %v", accountID, err)
			return
		}
		if report.Completed {
			log.Printf("[SyncPumpTask] 账号 %d 同步完成，共 %d 个商品", accountID, report.Total)
			return
		}
	}
}
