package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"shortd.local/internal/app/links/repo"
	"shortd.local/internal/platform/auth"
)

type RegisterRequest struct {
	UserName string `json:"username"`
	PassWord string `json:"password"`
}

type RegisterResponse struct {
	Id       string `json:"id"`
	UserName string `json:"username"`
}

func NewRegisterHandler(r *repo.AccountsRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		account, err := r.Register(c.Request.Context(), req.UserName, req.PassWord)
		if err != nil {
			if errors.Is(err, repo.ErrAccountAlreadyExists) {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
			} else if errors.Is(err, repo.ErrInvalidPassword) || errors.Is(err, repo.ErrInvalidUsername) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}
		c.JSON(http.StatusCreated, RegisterResponse{
			Id:       account.ID,
			UserName: account.Username,
		})
	}
}

type LoginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

func NewLoginHandler(r *repo.AccountsRepo, ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		findCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()
		account, err := r.FindByUsername(findCtx, req.UserName)
		if err != nil {
			if errors.Is(err, repo.ErrAccountNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			slog.Error("find account failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := ts.Sign(account.ID, account.Role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "sign failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func NewMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.GetIdentity(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "missing identity"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"account_id": id.AccountID,
			"role":       id.Role,
		})
	}
}
