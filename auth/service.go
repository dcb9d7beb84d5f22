package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	derrors "drone-relay/errors"
)

// Authenticator 校验身份与口令。
type Authenticator interface {
	Authenticate(ctx context.Context, identity, secret string) (bool, error)
}

// Service 基于凭据库与 bcrypt 哈希校验口令。
type Service struct {
	store Store
	role  Role
}

// NewService 创建某一类身份的认证服务。
func NewService(store Store, role Role) *Service {
	return &Service{store: store, role: role}
}

// Authenticate 校验口令。
// 返回：
// - bool: 身份存在且口令匹配时为 true
// - error: 哈希格式损坏等内部错误（口令不匹配不是错误）
func (s *Service) Authenticate(ctx context.Context, identity, secret string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c, ok := s.store.Lookup(s.role, identity)
	if !ok {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, derrors.Wrap(derrors.CodeInternal, "compare password hash", err)
	}
}

// HashSecret 生成口令的 bcrypt 哈希（用于写入凭据文件）。
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
