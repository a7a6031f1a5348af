package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"deploy-orchestrator/internal/adapter/installer"
	"deploy-orchestrator/internal/adapter/metrics"
	"deploy-orchestrator/internal/adapter/notification"
	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/api/router"
	"deploy-orchestrator/internal/core"
	"deploy-orchestrator/internal/core/health"
	"deploy-orchestrator/internal/core/strategy"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/pkg/database"
	"deploy-orchestrator/internal/pkg/logger"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/repository"
	"deploy-orchestrator/internal/scheduler"
	"deploy-orchestrator/internal/service"
	"deploy-orchestrator/internal/versionstore"

	_ "deploy-orchestrator/docs" // Swagger docs
)

// @title Deploy Orchestrator API
// @version 1.0
// @description 部署编排服务 API 文档
// @description 提供蓝绿/滚动/金丝雀发布、目标机群管理、发布历史查询等功能

// @contact.name API Support
// @contact.email support@example.com

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

var (
	configFile = flag.String("config", "", "配置文件路径 (例如: -config=configs/config.yaml)")
	version    = flag.Bool("version", false, "显示版本信息")
)

const (
	appVersion = "1.0.0"
	appName    = "deploy-orchestrator"
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	// init config logger
	var cfg *config.Config
	{
		// 优先级: 命令行参数 > 环境变量 > 默认路径
		configPath := getConfigPath()

		// 加载配置
		c, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("加载配置失败: %v\n", err)
			fmt.Println("\n使用方式:")
			fmt.Println("  1. 命令行参数指定:")
			fmt.Println("     ./deploy-orchestrator -config=configs/config.yaml")
			fmt.Println("  2. 环境变量指定:")
			fmt.Println("     export CONFIG_FILE=configs/config.yaml")
			fmt.Println("     ./deploy-orchestrator")
			fmt.Println("  3. 使用默认配置:")
			fmt.Println("     ./deploy-orchestrator  (将使用 configs/config.yaml)")
			os.Exit(1)
		}
		cfg = c

		// 初始化日志
		if err := logger.Init(&cfg.Log); err != nil {
			fmt.Printf("初始化日志失败: %v\n", err)
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Load config file: %s of %s", configPath, getConfigSource()))

		defer func() {
			_ = logger.Close()
		}()
	}

	logger.Info(fmt.Sprintf("服务 %s 启动中...", appName), zap.String("version", appVersion))

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer func() {
		_ = database.Close()
	}()

	logger.Info(fmt.Sprintf("数据库连接成功 %s:%v", cfg.Database.Host, cfg.Database.Port), zap.String("database", cfg.Database.Database))

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(&model.Target{}, &model.DeploymentRequest{}, &model.DeploymentRecord{}); err != nil {
			logger.Fatal("自动建表失败", zap.Error(err))
		}
	}

	// 注入数据库连接到配置
	cfg.DB = database.GetDB()

	// 初始化Repository与注册表
	targetRepo := repository.NewTargetRepository(database.GetDB())
	recordRepo := repository.NewRecordRepository(database.GetDB())
	requestRepo := repository.NewRequestRepository(database.GetDB())
	reg := registry.New(targetRepo)

	// 组装策略依赖
	trafficCtrl := buildTrafficController(cfg)
	artifactInstaller := buildInstaller(cfg)
	metricsSource := buildMetricsSource(cfg)
	notifier := buildNotifier(cfg)

	deps := strategy.Deps{
		Registry:  reg,
		Store:     versionstore.NewGormStore(recordRepo),
		Prober:    health.NewChecker(),
		Traffic:   trafficCtrl,
		Installer: artifactInstaller,
		Metrics:   metricsSource,
		Logger:    logger.Log,
	}

	// 初始化编排引擎
	engine := core.NewEngine(requestRepo, deps, notifier, logger.Log)
	if err := engine.Reconcile(); err != nil {
		logger.Fatal("启动恢复失败", zap.Error(err))
	}

	// 目标清单首次同步
	inventorySvc := service.NewInventoryService(reg, targetRepo, cfg.Inventory.File, logger.Log)
	if err := inventorySvc.Sync(); err != nil {
		logger.Warn("目标清单首次同步失败", zap.Error(err))
	} else if groups, err := inventorySvc.GroupNames(); err == nil && len(groups) > 0 {
		logger.Info("目标清单加载完成", zap.String("groups", strings.Join(groups, ",")))
	}

	// 初始化并启动定时任务调度器
	taskScheduler := scheduler.NewScheduler(inventorySvc, requestRepo, recordRepo, logger.Log)
	if err := taskScheduler.Start(cfg); err != nil {
		logger.Warn("定时任务调度器启动失败", zap.Error(err))
	}

	// 设置路由
	r := router.Setup(cfg, router.Deps{
		Engine:   engine,
		Registry: reg,
		Traffic:  trafficCtrl,
	})

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info(fmt.Sprintf("%s 服务启动成功", cfg.Server.Name),
			zap.String("address", addr),
			zap.String("mode", cfg.Server.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在关闭...")

	// 关闭定时任务调度器
	taskScheduler.Stop()

	// 停止受理新发布并等待在途发布走到终态
	engine.Shutdown()
	logger.Info("编排引擎已停止")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}

// buildTrafficController 按驱动装配流量控制器
func buildTrafficController(cfg *config.Config) traffic.Controller {
	switch cfg.Traffic.Driver {
	case "nginx":
		return traffic.NewNginxController(&cfg.Traffic)
	default:
		logger.Warn("未配置traffic.driver, 使用mock流量控制器", zap.String("driver", cfg.Traffic.Driver))
		return traffic.NewMockController()
	}
}

// buildInstaller 按驱动装配制品安装器
func buildInstaller(cfg *config.Config) installer.Installer {
	switch cfg.Installer.Driver {
	case "ssh":
		inst, err := installer.NewSSHInstaller(&cfg.Installer)
		if err != nil {
			logger.Fatal("初始化SSH安装器失败", zap.Error(err))
		}
		return inst
	default:
		logger.Warn("未配置installer.driver, 使用mock安装器", zap.String("driver", cfg.Installer.Driver))
		return installer.NewMockInstaller()
	}
}

// buildMetricsSource 金丝雀观察的错误率数据源
func buildMetricsSource(cfg *config.Config) metrics.Source {
	if cfg.Metrics.Endpoint == "" {
		logger.Warn("未配置metrics.endpoint, 金丝雀观察使用mock数据源")
		return metrics.NewMockSource()
	}
	src, err := metrics.NewHTTPSource(&cfg.Metrics)
	if err != nil {
		logger.Fatal("初始化错误率数据源失败", zap.Error(err))
	}
	return src
}

// buildNotifier 通知渠道装配, Lark之外兜底到日志通知
func buildNotifier(cfg *config.Config) notification.Notifier {
	logNotifier := notification.NewLogNotifier(logger.Log)
	if !cfg.Notification.Enabled {
		return logNotifier
	}
	switch cfg.Notification.Provider {
	case "lark":
		lark := notification.NewLarkNotifier(cfg.Notification.LarkWebhook, true, logger.Log)
		return notification.NewMultiNotifier(logger.Log, lark, logNotifier)
	default:
		logger.Warn("未知通知渠道, 使用日志通知", zap.String("provider", cfg.Notification.Provider))
		return logNotifier
	}
}

// getConfigPath 获取配置文件路径
// 优先级: 命令行参数 > 环境变量 > 默认路径
func getConfigPath() string {
	// 1. 命令行参数
	if *configFile != "" {
		return *configFile
	}

	// 2. 环境变量
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		return envConfig
	}

	// 3. 默认路径
	return "configs/config.yaml"
}

// getConfigSource 获取配置来源说明
func getConfigSource() string {
	if *configFile != "" {
		return "命令行参数"
	}
	if os.Getenv("CONFIG_FILE") != "" {
		return "环境变量"
	}
	return "默认配置"
}
