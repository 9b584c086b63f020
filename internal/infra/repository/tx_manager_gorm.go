package repository

import (
	"context"

	repo "github.com/KCSSB/DontAsk/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	refreshTokens repo.RefreshTokenRepository
	users         repo.UserRepository
	auditLogs     repo.AuditLogRepository
}

func (r *txReposGorm) RefreshTokens() repo.RefreshTokenRepository { return r.refreshTokens }
func (r *txReposGorm) Users() repo.UserRepository                 { return r.users }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// fnがnilを返したらcommit、エラーならrollback。
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			refreshTokens: NewRefreshTokenGormRepository(tx),
			users:         NewUserGormRepository(tx),
			auditLogs:     NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
}
