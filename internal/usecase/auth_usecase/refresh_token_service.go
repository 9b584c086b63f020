package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"
	"github.com/KCSSB/DontAsk/internal/repository"

	"github.com/labstack/gommon/log"
)

// リフレッシュトークン平文のバイト数（base64urlで43文字）
const refreshSecretBytes = 32

// ローテーション結果。平文のリフレッシュトークンはここで一度だけ返す
type RotateResult struct {
	AccessToken          string
	AccessTokenExpiresAt time.Time
	RefreshToken         string
}

// 発行（ログイン）・ローテーション（refresh）・削除（ログアウト）を行う
type RefreshTokenService struct {
	store     *RefreshTokenStore
	hasher    TokenHasher
	issuer    AccessTokenIssuer
	clock     Clock
	logger    *log.Logger
	newSecret func() (string, error)
}

// DI
func NewRefreshTokenService(
	store *RefreshTokenStore,
	hasher TokenHasher,
	issuer AccessTokenIssuer,
	clock Clock,
	logger *log.Logger,
) *RefreshTokenService {
	return &RefreshTokenService{
		store:  store,
		hasher: hasher,
		issuer: issuer,
		clock:  clock,
		logger: logger,
		newSecret: func() (string, error) {
			return generateSecureToken(refreshSecretBytes)
		},
	}
}

// ログイン時の発行。平文を返し、DBにはハッシュだけ残る
func (s *RefreshTokenService) IssueForLogin(ctx context.Context, user *model.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("user is required")
	}

	secret, err := s.newSecret()
	if err != nil {
		return "", err
	}

	token, err := s.store.Create(ctx, user.ID, secret)
	if err != nil {
		s.logger.Errorj(log.JSON{"op": "issue", "user_id": user.ID, "error": err.Error()})
		return "", err
	}

	s.audit(ctx, model.AuditActionLogin, token, "")
	return secret, nil
}

// 提示された平文でローテーションする。
// 旧トークンの失効をcommitしてから新トークンを作るので、同じ平文での同時実行は1件しか通らない。
func (s *RefreshTokenService) Rotate(ctx context.Context, presented string) (RotateResult, error) {
	var out RotateResult

	if presented == "" {
		return out, ErrUnauthorized
	}

	//DB照合
	current, err := s.store.FindByHash(ctx, s.hasher.Hash(presented))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return out, ErrUnauthorized
		}
		s.logger.Errorj(log.JSON{"op": "rotate", "error": err.Error()})
		return out, err
	}

	now := s.clock.Now().UTC()

	//失効済みが来たらリプレイの疑い
	if current.IsRevoked {
		s.rejectReplay(ctx, current, "revoked token presented")
		return out, ErrUnauthorized
	}
	//期限切れ
	if !current.IsActive(now) {
		return out, ErrUnauthorized
	}

	//access再発行にUserが要る。失効させる前に確かめる
	if current.User == nil {
		err := fmt.Errorf("refresh token %s: owner not loaded", current.ID)
		s.logger.Errorj(log.JSON{"op": "rotate", "token_id": current.ID, "user_id": current.UserID, "error": err.Error()})
		return out, err
	}

	//旧tokenを失効（Active→Revoked）。先に他のリクエストが失効させていたらfalse
	revoked, err := s.store.Revoke(ctx, current)
	if err != nil {
		s.logger.Errorj(log.JSON{"op": "rotate", "token_id": current.ID, "user_id": current.UserID, "error": err.Error()})
		return out, err
	}
	if !revoked {
		s.rejectReplay(ctx, current, "lost rotation race")
		return out, ErrUnauthorized
	}

	//新tokenを作って保存。ここで失敗したらログアウト状態のまま（安全側）
	newSecret, err := s.newSecret()
	if err != nil {
		return out, err
	}
	next, err := s.store.Create(ctx, current.UserID, newSecret)
	if err != nil {
		s.logger.Errorj(log.JSON{"op": "rotate", "user_id": current.UserID, "error": err.Error()})
		return out, err
	}

	//access再発行
	access, accessExp, err := s.issuer.Issue(current.User)
	if err != nil {
		return out, err
	}

	s.audit(ctx, model.AuditActionRefreshRotated, next, fmt.Sprintf(`{"replaced":%q}`, current.ID))

	out.AccessToken = access
	out.AccessTokenExpiresAt = accessExp
	out.RefreshToken = newSecret
	return out, nil
}

// ログアウト。見つかったトークンは失効済みでもそのまま物理削除する
func (s *RefreshTokenService) Revoke(ctx context.Context, presented string) error {
	if presented == "" {
		return ErrUnauthorized
	}

	current, err := s.store.FindByHash(ctx, s.hasher.Hash(presented))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return ErrUnauthorized
		}
		s.logger.Errorj(log.JSON{"op": "revoke", "error": err.Error()})
		return err
	}

	//期限切れは受け付けない（reaperが消す）
	if current.IsExpired(s.clock.Now().UTC()) {
		return ErrUnauthorized
	}

	if err := s.store.Delete(ctx, current); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return ErrUnauthorized
		}
		s.logger.Errorj(log.JSON{"op": "revoke", "token_id": current.ID, "user_id": current.UserID, "error": err.Error()})
		return err
	}

	s.audit(ctx, model.AuditActionLogout, current, "")
	return nil
}

func (s *RefreshTokenService) rejectReplay(ctx context.Context, token *model.RefreshToken, reason string) {
	s.logger.Warnj(log.JSON{"op": "rotate", "token_id": token.ID, "user_id": token.UserID, "reason": reason})
	s.audit(ctx, model.AuditActionRefreshRejected, token, fmt.Sprintf(`{"reason":%q}`, reason))
}

// 監査ログはベストエフォート。失敗してもログだけ
func (s *RefreshTokenService) audit(ctx context.Context, action model.AuditAction, token *model.RefreshToken, detail string) {
	err := s.store.recordAudit(ctx, model.AuditLog{
		ActorUserID: token.UserID,
		Action:      action,
		ResourceID:  token.ID,
		Detail:      detail,
	})
	if err != nil {
		s.logger.Warnj(log.JSON{"op": "audit", "action": string(action), "token_id": token.ID, "error": err.Error()})
	}
}

func generateSecureToken(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		return "", fmt.Errorf("bytesLen must be positive")
	}

	// ランダムなバイト列を作る（OSが持つ安全な乱数）
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
