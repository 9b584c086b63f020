package repository

import (
	"context"
	"errors"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// リフレッシュトークンの保存・取得・失効・削除
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	// Userをpreloadして1件取得
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// 未失効のときだけ失効にする。今回の呼び出しで失効にしたらtrue
	Revoke(ctx context.Context, tokenID string) (bool, error)
	// ユーザーの未失効トークンを全部失効にする
	RevokeAllByUserID(ctx context.Context, userID string) (int64, error)
	DeleteByID(ctx context.Context, tokenID string) error
	// is_revoked = true OR expires_at <= now を物理削除
	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)
}
