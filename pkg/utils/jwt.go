package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hud-backend/pkg/models"
)

const (
	// AccessTokenTTL 访问令牌有效期
	AccessTokenTTL = 15 * time.Minute
	// RefreshTokenTTL 刷新令牌有效期
	RefreshTokenTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenPair 访问令牌与刷新令牌，两者共享同一个会话ID
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresIn    int64
}

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	now       func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		now:       time.Now,
	}
}

// GenerateTokenPair 为新会话生成访问令牌和刷新令牌对
func (j *JWTService) GenerateTokenPair(userID, email string) (TokenPair, error) {
	sid, err := GenerateURLToken(18)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to generate session id: %w", err)
	}

	accessToken, expiresIn, err := j.GenerateAccessToken(userID, email, sid)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := j.sign(userID, email, sid, tokenTypeRefresh, RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sid,
		ExpiresIn:    expiresIn,
	}, nil
}

// GenerateAccessToken 生成访问令牌，返回令牌与过期时间（Unix秒）
func (j *JWTService) GenerateAccessToken(userID, email, sessionID string) (string, int64, error) {
	token, err := j.sign(userID, email, sessionID, tokenTypeAccess, AccessTokenTTL)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}
	return token, j.now().Add(AccessTokenTTL).Unix(), nil
}

func (j *JWTService) sign(userID, email, sessionID, tokenType string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := &models.TokenClaims{
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		Type:      tokenType,
		Exp:       now.Add(ttl).Unix(),
		Iat:       now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
}

// ValidateToken 验证令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	// 检查是否过期
	if j.now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}

	return claims, nil
}

// ValidateAccessToken 验证访问令牌
func (j *JWTService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, tokenTypeAccess)
}

// ValidateRefreshToken 验证刷新令牌
func (j *JWTService) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, tokenTypeRefresh)
}

func (j *JWTService) validateType(tokenString, want string) (*models.TokenClaims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", want, claims.Type)
	}
	return claims, nil
}

// RefreshAccessToken 使用刷新令牌生成新的访问令牌（会话ID保持不变）
func (j *JWTService) RefreshAccessToken(refreshToken string) (string, int64, *models.TokenClaims, error) {
	claims, err := j.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", 0, nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	token, exp, err := j.GenerateAccessToken(claims.UserID, claims.Email, claims.SessionID)
	if err != nil {
		return "", 0, nil, err
	}
	return token, exp, claims, nil
}
