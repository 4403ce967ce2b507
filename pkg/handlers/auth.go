package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/middleware"
	"hud-backend/pkg/models"
	"hud-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	accounts *auth.Service
	jwt      *utils.JWTService
	log      *logrus.Entry
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(accounts *auth.Service, jwtService *utils.JWTService) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		jwt:      jwtService,
		log:      logrus.WithField("component", "handlers.auth"),
	}
}

// Routes 挂载 /api/auth 下的路由；requireAuth 保护需要访问令牌的端点
func (h *AuthHandler) Routes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Post("/login", h.Login)
	r.Post("/refresh", h.RefreshToken)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})
}

// Login 邮箱密码登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		utils.WriteUnauthorizedResponse(w, auth.ErrInvalidCredentials.Error())
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := h.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.log.WithField("uid", user.ID).Info("user signed in")

	utils.WriteSuccessResponse(w, models.UserLoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// RefreshToken 刷新访问令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}
	if req.RefreshToken == "" {
		utils.WriteBadRequestResponse(w, "Refresh token is required")
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid refresh token")
		return
	}

	revoked, err := h.accounts.IsRevoked(r.Context(), claims.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if revoked {
		utils.WriteUnauthorizedResponse(w, "Session signed out")
		return
	}
	// 账户被删除后不再续期
	if _, err := h.accounts.Lookup(r.Context(), claims.UserID); err != nil {
		if errors.Is(err, auth.ErrUnknownUser) {
			utils.WriteUnauthorizedResponse(w, "Invalid refresh token")
			return
		}
		writeError(w, r, err)
		return
	}

	accessToken, expiresIn, _, err := h.jwt.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid refresh token")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

// Logout 登出当前会话，之后该会话的刷新令牌与访问令牌都会被拒绝
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	if err := h.accounts.RevokeSession(r.Context(), claims.SessionID, time.Now().Add(utils.RefreshTokenTTL)); err != nil {
		writeError(w, r, err)
		return
	}
	h.log.WithField("uid", claims.UserID).Info("user signed out")
	utils.WriteSuccessResponse(w, map[string]interface{}{"signed_out": true})
}

// Me 返回当前用户
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUserID(w, r)
	if !ok {
		return
	}
	user, err := h.accounts.Lookup(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, user)
}
