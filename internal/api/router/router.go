package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"campus-core/backend/config"
	"campus-core/backend/internal/api/handler"
	"campus-core/backend/internal/api/middleware"
	"campus-core/backend/pkg/jwt"
	"campus-core/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil：此时写接口不限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 写接口限流
	limit := middleware.RateLimit(rdb, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window, logger)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 房间模块
		rooms := v1.Group("/rooms")
		{
			rooms.GET("", h.Room.ListRooms)
			rooms.GET("/available", h.Room.ListAvailableRooms)
			rooms.GET("/:id", h.Room.GetRoom)
			rooms.POST("", middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleWarden), limit, h.Room.CreateRoom)
			rooms.PUT("/:id/status", middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleWarden), limit, h.Room.SetRoomStatus)
			rooms.POST("/:id/reconcile", middleware.RoleAuth(jwt.RoleAdmin), limit, h.Room.ReconcileRoom)
			rooms.DELETE("/:id", middleware.RoleAuth(jwt.RoleAdmin), limit, h.Room.DeleteRoom)
		}

		// 分配模块
		allocations := v1.Group("/allocations")
		{
			allocations.GET("", h.Allocation.ListAllocations)
			allocations.GET("/:id", h.Allocation.GetAllocation)
			allocations.POST("", middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleWarden), limit, h.Allocation.Allocate)
			allocations.POST("/:id/deallocate", middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleWarden), limit, h.Allocation.Deallocate)
			allocations.POST("/:id/check-in", middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleWarden), limit, h.Allocation.CheckIn)
			allocations.POST("/:id/cancel", middleware.RoleAuth(jwt.RoleAdmin), limit, h.Allocation.Cancel)
		}
		v1.GET("/students/:id/allocation", h.Allocation.GetActiveAllocation)

		// 考勤模块
		attendance := v1.Group("/attendance")
		{
			attendance.GET("", h.Attendance.ListAttendance)
			attendance.GET("/summary", h.Attendance.Summary)
			attendance.PUT("/day", middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleTeacher), limit, h.Attendance.ReplaceDay)
		}

		// 导出模块
		export := v1.Group("/export")
		{
			export.GET("/attendance", middleware.RoleAuth(jwt.RoleAdmin, jwt.RoleTeacher), h.Export.ExportAttendance)
		}

		// 对账
		v1.GET("/reconciliations", middleware.RoleAuth(jwt.RoleAdmin), h.Reconciliation.ListPending)
	}

	return r
}
