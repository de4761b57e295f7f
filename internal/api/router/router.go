package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qr-attendance/config"
	"qr-attendance/internal/api/handler"
	"qr-attendance/internal/api/middleware"
	"qr-attendance/internal/model"
	"qr-attendance/pkg/jwt"
	"qr-attendance/pkg/metrics"
	"qr-attendance/pkg/redis"
)

// loginRateLimit 登录接口按 IP 的限流阈值
const (
	loginRateLimit  = 20
	loginRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时黑名单与限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 避免 *redis.Client(nil) 被包装成非 nil 接口
	var (
		blacklist middleware.TokenBlacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist = rdb
		limiter = rdb
	}

	teacherOrAdmin := middleware.RoleAuth(model.RoleTeacher, model.RoleAdmin)
	studentOnly := middleware.RoleAuth(model.RoleStudent)

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": rdb.Healthy(ctx)})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(limiter, loginRateLimit, loginRateWindow), h.Auth.Login)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, blacklist))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)

			// 班级上课时间模块
			classes := authorized.Group("/classes")
			{
				classes.GET("/:id/schedules", h.Schedule.ListSchedules)
				classes.POST("/:id/schedules", teacherOrAdmin, h.Schedule.AddSchedule)
				classes.GET("/:id/calendar.ics", h.Schedule.ExportCalendar)
			}
			authorized.DELETE("/schedules/:id", teacherOrAdmin, h.Schedule.DeleteSchedule)

			// 签到模块
			attendance := authorized.Group("/attendance")
			{
				attendance.PUT("/schedule/attendance-time", teacherOrAdmin, h.Schedule.UpdateAttendanceTime)

				attendance.POST("/generate-qr", teacherOrAdmin, h.Attendance.GenerateQR)
				attendance.POST("/check-in", studentOnly,
					middleware.RateLimit(limiter, cfg.Attendance.CheckInRateLimit, cfg.Attendance.CheckInRateWindow),
					h.Attendance.CheckIn)
				attendance.GET("/my-history", studentOnly, h.Attendance.GetMyHistory)

				attendance.GET("/history/:classId", teacherOrAdmin, h.Attendance.GetClassHistory)
				attendance.GET("/report/:classId", teacherOrAdmin, h.Attendance.GetClassReport)
				attendance.GET("/report/:classId/export", teacherOrAdmin, h.Attendance.ExportClassReport)
				attendance.GET("/present/:classId", teacherOrAdmin, h.Attendance.GetPresent)
				attendance.GET("/absent/:classId", teacherOrAdmin, h.Attendance.GetAbsent)
				attendance.GET("/stats/:classId", teacherOrAdmin, h.Attendance.GetStudentStats)
				attendance.POST("/manual", teacherOrAdmin, h.Attendance.AddManual)
				attendance.DELETE("/:id", teacherOrAdmin, h.Attendance.RemoveAttendance)
			}
		}
	}

	return r
}
