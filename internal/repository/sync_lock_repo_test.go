package repository

import (
	"context"
	"testing"
	"time"

	"meli_dev_v1_202609/internal/model"
)

func TestLockAcquireAndContend(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncLockRepository(db)
	ctx := context.Background()

	ok, err := repo.Acquire(ctx, model.LockNameSyncTick, "owner-a", time.Minute)
	if err != nil {
		t.Fatalf("首次拿锁失败: %v", err)
	}
	if !ok {
		t.Fatal("空锁应能拿到")
	}

	// 别人持有期间拿不到
	ok, err = repo.Acquire(ctx, model.LockNameSyncTick, "owner-b", time.Minute)
	if err != nil {
		t.Fatalf("竞争拿锁出错: %v", err)
	}
	if ok {
		t.Fatal("锁被 owner-a 持有，owner-b 不应拿到")
	}

	// 持有者自己可以续期
	ok, _ = repo.Acquire(ctx, model.LockNameSyncTick, "owner-a", time.Minute)
	if !ok {
		t.Fatal("持有者续期应成功")
	}
}

func TestLockExpiredTakeover(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncLockRepository(db)
	ctx := context.Background()

	// 模拟崩溃进程留下的过期锁
	ok, err := repo.Acquire(ctx, model.LockNameSyncTick, "dead-owner", -time.Second)
	if err != nil || !ok {
		t.Fatalf("预置过期锁失败: ok=%v err=%v", ok, err)
	}

	ok, err = repo.Acquire(ctx, model.LockNameSyncTick, "new-owner", time.Minute)
	if err != nil {
		t.Fatalf("抢占过期锁出错: %v", err)
	}
	if !ok {
		t.Fatal("过期锁应可被抢占")
	}
}

func TestLockRelease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncLockRepository(db)
	ctx := context.Background()

	if ok, _ := repo.Acquire(ctx, model.LockNameSyncTick, "owner-a", time.Minute); !ok {
		t.Fatal("拿锁失败")
	}

	// 非持有者释放无效
	if err := repo.Release(ctx, model.LockNameSyncTick, "owner-b"); err != nil {
		t.Fatalf("释放出错: %v", err)
	}
	if ok, _ := repo.Acquire(ctx, model.LockNameSyncTick, "owner-c", time.Minute); ok {
		t.Fatal("非持有者的释放不应生效")
	}

	// 持有者释放后别人能拿
	if err := repo.Release(ctx, model.LockNameSyncTick, "owner-a"); err != nil {
		t.Fatalf("释放出错: %v", err)
	}
	if ok, _ := repo.Acquire(ctx, model.LockNameSyncTick, "owner-c", time.Minute); !ok {
		t.Fatal("释放后应能拿到锁")
	}
}
