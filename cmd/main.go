package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"

	"meli_dev_v1_202609/internal/controller"
	"meli_dev_v1_202609/internal/middleware"
	"meli_dev_v1_202609/internal/model"
	"meli_dev_v1_202609/internal/repository"
	"meli_dev_v1_202609/internal/router"
	"meli_dev_v1_202609/internal/service"
	"meli_dev_v1_202609/internal/task"
	"meli_dev_v1_202609/pkg/database"
	"meli_dev_v1_202609/pkg/meli"
	"meli_dev_v1_202609/pkg/net"
)

// ==================== 依赖容器 ====================

type Repositories struct {
	Account repository.AccountRepository
	Item    repository.ItemRepository
	Lock    repository.SyncLockRepository
	User    repository.UserRepository
}

type Services struct {
	Auth    *service.AuthService
	Mirror  *service.MirrorService
	Sync    *service.SyncService
	Item    *service.ItemService
	Account *service.AccountService
	User    *service.UserService
}

func main() {
	log.Println("[Main] 美客多卖家看板启动中...")

	db, err := initDatabase()
	if err != nil {
		log.Fatalf("[Main] 数据库初始化失败: %v", err)
	}

	jwtCfg := middleware.DefaultJWTConfig()
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		jwtCfg.SecretKey = secret
	}

	repos := initRepositories(db)
	services := initServices(repos, jwtCfg)

	// 启动时保证有管理员可登录
	if err := services.User.EnsureAdmin(context.Background(),
		getEnv("ADMIN_USERNAME", "admin"),
		getEnv("ADMIN_PASSWORD", "admin123"),
	); err != nil {
		log.Fatalf("[Main] 初始化管理员失败: %v", err)
	}

	taskCfg := task.DefaultTaskManagerConfig()
	taskCfg.EnableSyncPump = getEnvBool("ENABLE_SYNC_PUMP", true)
	taskCfg.EnableTokenTask = getEnvBool("ENABLE_TOKEN_TASK", true)
	tasks := task.NewTaskManager(services.Sync, services.Auth, taskCfg)
	if err := tasks.Start(); err != nil {
		log.Fatalf("[Main] 启动后台任务失败: %v", err)
	}
	defer tasks.Stop()

	engine := router.SetupRouter(router.Controllers{
		User:    controller.NewUserController(services.User),
		Auth:    controller.NewAuthController(services.Auth),
		Account: controller.NewAccountController(services.Account),
		Item:    controller.NewItemController(services.Item),
		Sync:    controller.NewSyncController(services.Sync, tasks),
	}, jwtCfg)

	startServer(engine)
}

// ==================== 初始化 ====================

func initDatabase() (*gorm.DB, error) {
	dsn := getEnv("DATABASE_DSN",
		"host=localhost user=postgres password=postgres dbname=meli_dashboard port=5432 sslmode=disable TimeZone=America/Sao_Paulo")

	return database.InitDB(dsn,
		&model.Account{},
		&model.Item{},
		&model.SyncLock{},
		&model.SysUser{},
	)
}

func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account: repository.NewAccountRepository(db),
		Item:    repository.NewItemRepository(db),
		Lock:    repository.NewSyncLockRepository(db),
		User:    repository.NewUserRepository(db),
	}
}

func initServices(repos *Repositories, jwtCfg middleware.JWTConfig) *Services {
	oauth := meli.NewOAuthClient(meli.OAuthConfig{
		ClientID:     getEnv("MELI_CLIENT_ID", ""),
		ClientSecret: getEnv("MELI_CLIENT_SECRET", ""),
		RedirectURI:  getEnv("MELI_REDIRECT_URI", "http://localhost:8080/api/v1/auth/callback"),
		AuthBaseURL:  getEnv("MELI_AUTH_BASE_URL", "https://auth.mercadolivre.com.br"),
		APIBaseURL:   getEnv("MELI_API_BASE_URL", "https://api.mercadolibre.com"),
	})

	dispatcher := net.NewDispatcher(net.DefaultBackoff())
	client := meli.NewClient(dispatcher, getEnv("MELI_API_BASE_URL", "https://api.mercadolibre.com"))

	syncCfg := service.DefaultSyncConfig()
	syncCfg.TickBudget = time.Duration(getEnvInt("SYNC_TICK_BUDGET_SECONDS", 25)) * time.Second
	syncCfg.VisitsWindowDays = getEnvInt("SYNC_VISITS_WINDOW_DAYS", 30)
	if zips := getEnv("MELI_FREIGHT_ZIPS", ""); zips != "" {
		syncCfg.FreightZips = strings.Split(zips, ",")
	}

	auth := service.NewAuthService(repos.Account, oauth)
	mirror := service.NewMirrorService(repos.Item)
	syncSvc := service.NewSyncService(repos.Account, repos.Item, repos.Lock, client, auth, mirror, syncCfg)

	return &Services{
		Auth:    auth,
		Mirror:  mirror,
		Sync:    syncSvc,
		Item:    service.NewItemService(repos.Item, repos.Account, client, auth),
		Account: service.NewAccountService(repos.Account, repos.Item),
		User:    service.NewUserService(repos.User, jwtCfg),
	}
}

// ==================== HTTP 服务 ====================

func startServer(engine http.Handler) {
	addr := ":" + getEnv("SERVER_PORT", "8080")
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		log.Printf("[Main] HTTP 服务监听 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Main] HTTP 服务异常退出: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Main] 收到退出信号，开始优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Main] 优雅关闭失败: %v", err)
	}
	log.Println("[Main] 服务已退出")
}

// ==================== 环境变量 ====================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
