// Package security 提供 API 访问令牌的签发与校验。
package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSecretKeyEmpty 未配置签名密钥
	ErrSecretKeyEmpty = errors.New("security: secret key is empty")

	// ErrTokenInvalid 令牌无效或已过期
	ErrTokenInvalid = errors.New("security: invalid token")
)

// JWTConfig JWT 配置
type JWTConfig struct {
	// SecretKey HS256 签名密钥
	SecretKey string `mapstructure:"secret_key" json:"secret_key" yaml:"secret_key"`

	// ExpiresIn Token 过期时间（默认 24 小时）
	ExpiresIn time.Duration `mapstructure:"expires_in" json:"expires_in" yaml:"expires_in"`

	// Issuer 签发者
	Issuer string `mapstructure:"issuer" json:"issuer" yaml:"issuer"`

	// TokenPrefix Token 前缀（默认 "Bearer "）
	TokenPrefix string `mapstructure:"token_prefix" json:"token_prefix" yaml:"token_prefix"`
}

// DefaultJWTConfig 默认 JWT 配置
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		ExpiresIn:   24 * time.Hour,
		TokenPrefix: "Bearer ",
	}
}

// Claims JWT Claims
type Claims struct {
	jwt.RegisteredClaims
}

// JWTManager JWT 管理器，HS256 签名
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager 创建 JWT 管理器
func NewJWTManager(cfg *JWTConfig) (*JWTManager, error) {
	if cfg == nil {
		cfg = DefaultJWTConfig()
	}
	if cfg.SecretKey == "" {
		return nil, ErrSecretKeyEmpty
	}
	if cfg.ExpiresIn <= 0 {
		cfg.ExpiresIn = 24 * time.Hour
	}
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = "Bearer "
	}
	return &JWTManager{config: cfg}, nil
}

// GenerateToken 为指定主体签发 Token
func (m *JWTManager) GenerateToken(subject string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.ExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// ValidateToken 校验 Token，自动剥离前缀
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, m.config.TokenPrefix)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
