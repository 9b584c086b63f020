package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	RefreshTokens() RefreshTokenRepository
	Users() UserRepository
	AuditLogs() AuditLogRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
// 1回のWithinTxが1つのセッション。操作をまたいで使い回さない。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
