package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shortd.local/internal/app/links"
	"shortd.local/internal/app/links/repo"
	"shortd.local/internal/app/links/stats"
	"shortd.local/internal/platform/metrics"
)

// 设计原因（为什么要单独一个 httpapi 包）：
// - 让领域层（internal/app/links）不依赖 HTTP 框架（gin），更容易测试与复用
// - handler 只做“翻译”：HTTP <-> 领域（参数校验、错误映射、响应格式），避免堆业务

type CreateLinkRequest struct {
	URL       string `json:"url"`
	Slug      string `json:"slug,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type EditLinkRequest struct {
	URL       *string `json:"url,omitempty"`
	Slug      *string `json:"slug,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// writeLinkError 把领域错误映射成 HTTP 状态码。
// 校验类 -> 400，冲突类 -> 409，找不到 -> 404，已过期 -> 410，其他 -> 500。
func writeLinkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, links.ErrInvalidURL),
		errors.Is(err, links.ErrUnsupportedScheme),
		errors.Is(err, links.ErrEmptySlug),
		errors.Is(err, links.ErrSlugLength),
		errors.Is(err, links.ErrSlugCharset),
		errors.Is(err, links.ErrSlugReserved),
		errors.Is(err, links.ErrInvalidExpiry):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, links.ErrSlugTaken),
		errors.Is(err, links.ErrSlugExhausted),
		errors.Is(err, repo.ErrAlreadyDisabled):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, links.ErrLinkNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, links.ErrLinkExpired):
		c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func NewCreateHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		accountID, ok := mustGetAccountID(c)
		if !ok {
			return
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		link, err := r.Create(c.Request.Context(), accountID, req.URL, req.Slug, enabled, req.ExpiresAt)
		if err != nil {
			metrics.LinkOperations.WithLabelValues("create", "error").Inc()
			writeLinkError(c, err)
			return
		}
		metrics.LinkOperations.WithLabelValues("create", "ok").Inc()
		c.JSON(http.StatusCreated, toLinkResponse(c, link, time.Now()))
	}
}

func NewEditHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EditLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		accountID, ok := mustGetAccountID(c)
		if !ok {
			return
		}
		link, err := r.Edit(c.Request.Context(), accountID, c.Param("id"), repo.Patch{
			DestinationRaw: req.URL,
			RequestedSlug:  req.Slug,
			Enabled:        req.Enabled,
			ExpiresAtRaw:   req.ExpiresAt,
		})
		if err != nil {
			metrics.LinkOperations.WithLabelValues("edit", "error").Inc()
			writeLinkError(c, err)
			return
		}
		metrics.LinkOperations.WithLabelValues("edit", "ok").Inc()
		c.JSON(http.StatusOK, toLinkResponse(c, link, time.Now()))
	}
}

func NewToggleHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := mustGetAccountID(c)
		if !ok {
			return
		}
		current, err := r.FindByID(c.Request.Context(), accountID, c.Param("id"))
		if err != nil {
			writeLinkError(c, err)
			return
		}
		next := !current.Enabled
		link, err := r.Edit(c.Request.Context(), accountID, c.Param("id"), repo.Patch{Enabled: &next})
		if err != nil {
			metrics.LinkOperations.WithLabelValues("toggle", "error").Inc()
			writeLinkError(c, err)
			return
		}
		metrics.LinkOperations.WithLabelValues("toggle", "ok").Inc()
		c.JSON(http.StatusOK, toLinkResponse(c, link, time.Now()))
	}
}

func NewDeleteHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := mustGetAccountID(c)
		if !ok {
			return
		}
		if err := r.Delete(c.Request.Context(), accountID, c.Param("id")); err != nil {
			metrics.LinkOperations.WithLabelValues("delete", "error").Inc()
			writeLinkError(c, err)
			return
		}
		metrics.LinkOperations.WithLabelValues("delete", "ok").Inc()
		c.Status(http.StatusNoContent)
	}
}

func NewGetHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := mustGetAccountID(c)
		if !ok {
			return
		}
		link, err := r.FindByID(c.Request.Context(), accountID, c.Param("id"))
		if err != nil {
			writeLinkError(c, err)
			return
		}
		c.JSON(http.StatusOK, toLinkResponse(c, link, time.Now()))
	}
}

func NewListHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := mustGetAccountID(c)
		if !ok {
			return
		}
		var f repo.Filter
		f.Query = c.Query("q")
		if s := c.Query("status"); s != "" {
			status, valid := links.ParseStatus(s)
			if !valid {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
				return
			}
			f.Status = status
		}
		now := time.Now()
		list, err := r.List(c.Request.Context(), accountID, f, now)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		out := make([]linkResponse, 0, len(list))
		for _, l := range list {
			out = append(out, toLinkResponse(c, l, now))
		}
		c.JSON(http.StatusOK, gin.H{"links": out, "total": len(out)})
	}
}

// NewRedirectHandler 处理 GET /:slug。
// 命中时异步上报点击事件；计数本身在领域层同步完成，这里不重复加。
func NewRedirectHandler(r *repo.LinksRepo, collector stats.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Param("slug")
		destination, err := r.AccessBySlug(c.Request.Context(), slug, time.Now())
		if err != nil {
			switch {
			case errors.Is(err, links.ErrLinkNotFound), errors.Is(err, links.ErrLinkDisabled):
				// 对外不区分"不存在"和"已停用"，避免暴露 slug 占用情况
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			case errors.Is(err, links.ErrLinkExpired):
				c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": "link expired"})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}
		metrics.LinkRedirects.Inc()

		//异步记录点击
		if collector != nil {
			link, lerr := r.LinkBySlug(c.Request.Context(), slug)
			if lerr == nil {
				collector.Collect(stats.ClickEvent{
					LinkID:    link.ID,
					Slug:      link.Slug,
					ClickedAt: time.Now(),
					IP:        c.ClientIP(),
					UserAgent: c.Request.UserAgent(),
					Referer:   c.Request.Referer(),
				})
			}
		}

		c.Redirect(http.StatusFound, destination)
	}
}

func NewAdminDisableHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := r.Disable(c.Request.Context(), c.Param("id")); err != nil {
			writeLinkError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func NewAdminSweepHandler(r *repo.LinksRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		swept, err := r.SweepExpired(c.Request.Context(), time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		metrics.SweptLinks.Add(float64(swept))
		c.JSON(http.StatusOK, gin.H{"swept": swept})
	}
}
