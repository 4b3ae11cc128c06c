package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lvdashuaibi/onevote/internal/apperr"
)

// TokenService 签发和校验无状态JWT，服务端不保存会话
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue 为subjectID签发令牌
func (s *TokenService) Issue(subjectID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}
	return token, nil
}

// Verify 校验令牌并返回subjectID
func (s *TokenService) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.New(apperr.AuthInvalid, "缺少令牌")
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名算法: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.Wrap(apperr.AuthExpired, "令牌已过期", err)
		}
		return "", apperr.Wrap(apperr.AuthInvalid, "令牌无效", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", apperr.New(apperr.AuthInvalid, "令牌无效")
	}
	if claims.ExpiresAt == nil {
		return "", apperr.New(apperr.AuthInvalid, "令牌缺少过期时间")
	}

	return claims.Subject, nil
}
