package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/adapter/traffic"
	"deploy-orchestrator/internal/api/handler"
	"deploy-orchestrator/internal/api/middleware"
	"deploy-orchestrator/internal/core"
	"deploy-orchestrator/internal/pkg/auth"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/repository"
	"deploy-orchestrator/internal/service"
)

// Deps 路由层依赖, 由main组装注入
type Deps struct {
	Engine   *core.Engine
	Registry *registry.Registry
	Traffic  traffic.Controller
}

// Setup 设置路由
func Setup(cfg *config.Config, deps Deps) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 服务自身的健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 获取数据库连接
	db := cfg.DB.(*gorm.DB)

	// 初始化Repository
	targetRepo := repository.NewTargetRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	requestRepo := repository.NewRequestRepository(db)

	// 初始化Service
	authService := service.NewAuthService(&cfg.Auth)
	deploymentService := service.NewDeploymentService(deps.Engine, deps.Registry, requestRepo, cfg)
	recordService := service.NewRecordService(recordRepo, targetRepo)
	targetService := service.NewTargetService(deps.Registry, targetRepo, deps.Traffic, cfg)

	// 初始化Handler
	authHandler := handler.NewAuthHandler(authService)
	deploymentHandler := handler.NewDeploymentHandler(deploymentService, recordService)
	targetHandler := handler.NewTargetHandler(targetService, recordService)

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证相关(无需token)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandler.Token)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		// 需要认证的路由
		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware())
		{
			// 认证信息
			authed.GET("/auth/me", authHandler.GetMe)

			// 发布管理
			deployments := authed.Group("/deployments")
			{
				deployments.POST("", middleware.RequirePermission(auth.PermDeploySubmit), deploymentHandler.Submit) // 提交发布, 同步返回终态
				deployments.GET("", middleware.RequirePermission(auth.PermDeployView), deploymentHandler.List)
				deployments.GET("/:request_id", middleware.RequirePermission(auth.PermDeployView), deploymentHandler.Get)
				deployments.GET("/:request_id/records", middleware.RequirePermission(auth.PermRecordView), deploymentHandler.GetRecords)
			}

			// 目标管理
			targets := authed.Group("/targets")
			{
				targets.POST("", middleware.RequirePermission(auth.PermTargetWrite), targetHandler.Create)
				targets.GET("", middleware.RequirePermission(auth.PermTargetView), targetHandler.List)
				targets.GET("/:id", middleware.RequirePermission(auth.PermTargetView), targetHandler.Get)
				targets.PUT("/:id", middleware.RequirePermission(auth.PermTargetWrite), targetHandler.Update)
				targets.PUT("/:id/routing", middleware.RequirePermission(auth.PermTargetWrite), targetHandler.UpdateRouting) // 手工摘流/接流
				targets.DELETE("/:id", middleware.RequirePermission(auth.PermTargetWrite), targetHandler.Retire)             // 退役(软删除)
				targets.GET("/:id/records", middleware.RequirePermission(auth.PermRecordView), targetHandler.GetRecords)
			}
		}
	}

	return r
}
