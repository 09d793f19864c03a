package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// TraceName 把 otelhttp 生成的 span 重命名为 "METHOD /route/pattern"，
// 避免所有请求都挤在同一个 span 名下。
func TraceName() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		span.SetName(c.Request.Method + " " + c.FullPath())
		c.Next()
	}
}
