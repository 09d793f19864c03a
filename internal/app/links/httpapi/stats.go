package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shortd.local/internal/app/links/repo"
	"shortd.local/internal/app/links/stats"
)

type LinkStatsResponse struct {
	LinkID       string              `json:"link_id"`
	Slug         string              `json:"slug"`
	TotalClicks  int64               `json:"total_clicks"`
	RecentClicks []stats.ClickDetail `json:"recent_clicks,omitempty"`
	NextCursor   *int64              `json:"next_cursor,omitempty"`
}

// NewStatsHandler 返回某条链接的统计。总点击数来自快照里的权威计数；
// 点击明细来自 click_stats 表，reader 为 nil（未接数据库）时只返回总数。
func NewStatsHandler(r *repo.LinksRepo, reader *stats.Reader) gin.HandlerFunc {
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

		res := LinkStatsResponse{
			LinkID:      link.ID,
			Slug:        link.Slug,
			TotalClicks: link.ClickCount,
		}
		if reader == nil {
			c.JSON(http.StatusOK, res)
			return
		}

		limit := 20
		if l := c.Query("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
				limit = n
			} else {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
		}
		var cursor int64 = 0
		if cu := c.Query("cursor"); cu != "" {
			if n, err := strconv.ParseInt(cu, 10, 64); err == nil && n > 0 {
				cursor = n
			} else {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
				return
			}
		}

		page, err := reader.ListByLink(c.Request.Context(), link.ID, limit, cursor)
		if err != nil {
			slog.Error("list click stats failed", "link_id", link.ID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		res.RecentClicks = page.RecentClicks
		res.NextCursor = page.NextCursor
		c.JSON(http.StatusOK, res)
	}
}
