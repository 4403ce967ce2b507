package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"hud-backend/pkg/models"
	"hud-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	ClaimsContextKey ContextKey = "claims"
)

// ErrUnauthenticated 请求上下文中没有已认证的用户
var ErrUnauthenticated = errors.New("user not authenticated")

// SessionChecker 检查会话是否已登出
type SessionChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// AuthMiddleware JWT认证中间件，只接受访问令牌。
// sessions 为 nil 时不检查登出状态。
func AuthMiddleware(jwtService *utils.JWTService, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logrus.WithField("path", r.URL.Path)

			tokenString, ok := bearerToken(r)
			if !ok {
				log.Debug("missing or malformed authorization header")
				utils.WriteUnauthorizedResponse(w, "Missing authorization header")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				log.WithError(err).Debug("token rejected")
				utils.WriteUnauthorizedResponse(w, "Invalid token")
				return
			}

			if sessions != nil && claims.SessionID != "" {
				revoked, err := sessions.IsRevoked(r.Context(), claims.SessionID)
				if err != nil {
					log.WithError(err).Error("failed to check session")
					utils.WriteInternalServerErrorResponse(w, "Failed to check session")
					return
				}
				if revoked {
					utils.WriteUnauthorizedResponse(w, "Session signed out")
					return
				}
			}

			recordUser(r.Context(), claims.Email)
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

// WithClaims 将令牌声明放入context
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// GetClaimsFromContext 从context中获取令牌声明
func GetClaimsFromContext(ctx context.Context) (*models.TokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	return claims, ok && claims != nil
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	claims, ok := GetClaimsFromContext(ctx)
	if !ok {
		return nil, false
	}
	return &models.User{ID: claims.UserID, Email: claims.Email}, true
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.User, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	return user, nil
}
