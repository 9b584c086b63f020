package repository

import (
	"context"
	"errors"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"
	repo "github.com/KCSSB/DontAsk/internal/repository"

	"gorm.io/gorm"
)

type refreshTokenGormRepository struct {
	db *gorm.DB //DB接続（GORM）
}

// GORM実装
func NewRefreshTokenGormRepository(db *gorm.DB) repo.RefreshTokenRepository {
	return &refreshTokenGormRepository{db: db}
}

// リフレッシュトークンを保存。
func (r *refreshTokenGormRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	//タイムアウトやキャンセルをDB処理に伝える
	if err := r.db.WithContext(ctx).Omit("User").Create(token).Error; err != nil {
		return err
	}
	return nil
}

// token_hashで1件検索。新しいアクセストークンを作るのでUserも一緒に取る。
func (r *refreshTokenGormRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken

	err := r.db.WithContext(ctx).
		Preload("User").
		Where("token_hash = ?", tokenHash).
		First(&token).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrRefreshTokenNotFound
		}
		return nil, err
	}

	return &token, nil
}

// is_revokedをtrueにする。
// 行ロックで直列化されるので、同じトークンを同時に失効させても1件しか更新されない。
func (r *refreshTokenGormRepository) Revoke(ctx context.Context, tokenID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("id = ? AND is_revoked = ?", tokenID, false).
		Update("is_revoked", true)

	if result.Error != nil {
		return false, result.Error
	}

	// 0件なら「すでに失効/存在しない」
	return result.RowsAffected > 0, nil
}

// 指定ユーザーの未失効トークンを全部失効。
func (r *refreshTokenGormRepository) RevokeAllByUserID(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true)

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// 指定IDのリフレッシュトークンを削除。
func (r *refreshTokenGormRepository) DeleteByID(ctx context.Context, tokenID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", tokenID).
		Delete(&model.RefreshToken{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrRefreshTokenNotFound
	}

	return nil
}

// 失効済み・期限切れをまとめて削除。削除件数を返す。
func (r *refreshTokenGormRepository) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_revoked = ? OR expires_at <= ?", true, now).
		Delete(&model.RefreshToken{})

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
