package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shortd.local/internal/app/links"
	"shortd.local/internal/platform/auth"
)

// mustGetAccountID 从上下文中获取账号ID，失败时返回错误响应
// 返回 accountID 和是否成功，失败时已写入错误响应
func mustGetAccountID(c *gin.Context) (string, bool) {
	identity, ok := auth.GetIdentity(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not login"})
		return "", false
	}
	return identity.AccountID, true
}

// linkResponse 是传输层的 Link 表示。
// status 是按当前时间实时推导的，存储里没有这个字段。
type linkResponse struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	ShortURL    string `json:"short_url"`
	Destination string `json:"destination"`
	Status      string `json:"status"`
	Enabled     bool   `json:"enabled"`
	ClickCount  int64  `json:"click_count"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func toLinkResponse(c *gin.Context, l links.Link, now time.Time) linkResponse {
	res := linkResponse{
		ID:          l.ID,
		Slug:        l.Slug,
		ShortURL:    shortURLFor(c, l.Slug),
		Destination: l.DestinationURL,
		Status:      string(l.StatusAt(now)),
		Enabled:     l.Enabled,
		ClickCount:  l.ClickCount,
		CreatedAt:   l.CreatedAt.Format(time.RFC3339),
	}
	if l.ExpiresAt != nil {
		res.ExpiresAt = l.ExpiresAt.Format(time.RFC3339)
	}
	return res
}

func shortURLFor(c *gin.Context, slug string) string {
	path := "/" + slug
	scheme := c.Request.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
	}
	if host := c.Request.Host; host != "" {
		return scheme + "://" + host + path
	}
	return path
}
