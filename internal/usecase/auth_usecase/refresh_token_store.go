package auth

import (
	"context"
	"errors"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"
	"github.com/KCSSB/DontAsk/internal/repository"
)

// リフレッシュトークンの永続化。
// 操作ごとにWithinTxで新しいセッションを取り、操作をまたいでTxを持ち越さない。
type RefreshTokenStore struct {
	tx       repository.TransactionManager
	hasher   TokenHasher
	idGen    IDGenerator
	clock    Clock
	lifetime time.Duration
}

// DI
func NewRefreshTokenStore(
	tx repository.TransactionManager,
	hasher TokenHasher,
	idGen IDGenerator,
	clock Clock,
	lifetime time.Duration,
) *RefreshTokenStore {
	return &RefreshTokenStore{
		tx:       tx,
		hasher:   hasher,
		idGen:    idGen,
		clock:    clock,
		lifetime: lifetime,
	}
}

// 平文をハッシュして保存し、ユーザーの現在のトークンにする。
// ユーザー行をロックしてから同じユーザーの未失効トークンを失効させる（生きているのは常に1件）
func (s *RefreshTokenStore) Create(ctx context.Context, userID string, rawSecret string) (*model.RefreshToken, error) {
	//期限は「操作時点」から数える
	now := s.clock.Now().UTC()

	token := &model.RefreshToken{
		ID:        s.idGen.NewID(),
		UserID:    userID,
		TokenHash: s.hasher.Hash(rawSecret),
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
		IsRevoked: false,
	}

	err := s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		//同じユーザーの同時ログインはここで直列化
		if _, err := r.Users().FindByIDForUpdate(ctx, userID); err != nil {
			return err
		}
		if _, err := r.RefreshTokens().RevokeAllByUserID(ctx, userID); err != nil {
			return err
		}
		return r.RefreshTokens().Create(ctx, token)
	})
	if err != nil {
		return nil, newPersistenceError("create", err)
	}

	return token, nil
}

// token_hashで検索（User付き）。無ければ repository.ErrRefreshTokenNotFound
func (s *RefreshTokenStore) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token *model.RefreshToken

	err := s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		t, err := r.RefreshTokens().FindByTokenHash(ctx, tokenHash)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, repository.ErrRefreshTokenNotFound
		}
		return nil, newPersistenceError("find", err)
	}

	return token, nil
}

// 失効にする。すでに失効済みならエラーにせずfalse。
// trueは「この呼び出しがActive→Revokedにした」こと。
func (s *RefreshTokenStore) Revoke(ctx context.Context, token *model.RefreshToken) (bool, error) {
	var revoked bool

	err := s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		ok, err := r.RefreshTokens().Revoke(ctx, token.ID)
		if err != nil {
			return err
		}
		revoked = ok
		return nil
	})
	if err != nil {
		return false, newPersistenceError("revoke", err)
	}

	if revoked {
		token.IsRevoked = true
	}
	return revoked, nil
}

// 物理削除。先に消されていたら repository.ErrRefreshTokenNotFound
func (s *RefreshTokenStore) Delete(ctx context.Context, token *model.RefreshToken) error {
	err := s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		return r.RefreshTokens().DeleteByID(ctx, token.ID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return repository.ErrRefreshTokenNotFound
		}
		return newPersistenceError("delete", err)
	}
	return nil
}

// 失効済み・期限切れをまとめて削除し、件数を返す
func (s *RefreshTokenStore) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()

	var deleted int64
	err := s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		n, err := r.RefreshTokens().DeleteExpiredOrRevoked(ctx, now)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, newPersistenceError("sweep", err)
	}
	return deleted, nil
}

// 監査ログは本処理と別セッション
func (s *RefreshTokenStore) recordAudit(ctx context.Context, entry model.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now().UTC()
	}
	if entry.ResourceType == "" {
		entry.ResourceType = model.AuditResourceRefreshToken
	}
	return s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		return r.AuditLogs().Create(ctx, entry)
	})
}
