package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shortd.local/internal/app/links/repo"
	"shortd.local/internal/app/links/stats"
	"shortd.local/internal/platform/auth"
	"shortd.local/internal/platform/httpmiddleware"
)

// RegisterAPIRoutes 用于在给定的路由分组下挂载短链 API 路由（例如 /api/v1）。
//
// 约定：本包只做“传输层（transport）”工作；领域逻辑放在 internal/app/links。
//
// 设计原因：
// - cmd/api 只负责"组装"和"挂载"，各业务模块自己提供 Register*Routes，避免路由散落在 main.go
// - API 路由一般用于机器调用（JSON），统一放在 /api/v1 下便于版本化
func RegisterAPIRoutes(api *gin.RouterGroup, linksRepo *repo.LinksRepo, accountsRepo *repo.AccountsRepo, ts auth.TokenService, reader *stats.Reader) {
	//无需登录的路由
	api.Use(httpmiddleware.AuthOptional(ts))
	api.POST("/register", NewRegisterHandler(accountsRepo))
	api.POST("/login", NewLoginHandler(accountsRepo, ts))

	// 需要登录的路由
	authed := api.Group("")
	authed.Use(httpmiddleware.AuthRequired(ts))
	authed.GET("/me", NewMeHandler())
	authed.POST("/links", NewCreateHandler(linksRepo))
	authed.GET("/links", NewListHandler(linksRepo))
	authed.GET("/links/:id", NewGetHandler(linksRepo))
	authed.PATCH("/links/:id", NewEditHandler(linksRepo))
	authed.DELETE("/links/:id", NewDeleteHandler(linksRepo))
	authed.POST("/links/:id/toggle", NewToggleHandler(linksRepo))
	authed.GET("/links/:id/stats", NewStatsHandler(linksRepo, reader))

	// 需要管理员的路由
	admin := api.Group("/admin")
	admin.Use(httpmiddleware.AuthRequired(ts), httpmiddleware.RequireRole("admin"))
	admin.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	admin.POST("/links/:id/disable", NewAdminDisableHandler(linksRepo))
	admin.POST("/sweep", NewAdminSweepHandler(linksRepo))
}

// RegisterPublicRoutes 用于在根路由上挂载“公开跳转”路由（GET /:slug）。
//
// 跳转入口刻意不放在 /api/v1 下，方便用户直接在浏览器输入短链 URL。
func RegisterPublicRoutes(engine *gin.Engine, r *repo.LinksRepo, collector stats.Collector) {
	engine.GET("/:slug", NewRedirectHandler(r, collector))
}
