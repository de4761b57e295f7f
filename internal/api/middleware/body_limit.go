package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-attendance/pkg/response"
)

// BodyLimit 全局请求体大小限制中间件
// 声明了 Content-Length 且超限的请求直接 413；未声明长度的请求由 MaxBytesReader 截断，绑定失败按参数错误处理
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			response.PayloadTooLarge(c)
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
