package auth

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// リフレッシュトークンが無い・失効済み・期限切れ。
// 原因はクライアントに区別して返さない（オラクル対策）
var ErrUnauthorized = errors.New("unauthorized")

// unique違反（Postgres）
const pgUniqueViolation = "23505"

// DBへの保存（commit）に失敗した。サーバー側の障害として扱う。
type PersistenceError struct {
	Op         string // create / find / revoke / delete / sweep
	Constraint string // unique違反のときの制約名
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("refresh token store %s: constraint %s: %v", e.Op, e.Constraint, e.Err)
	}
	return fmt.Sprintf("refresh token store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func newPersistenceError(op string, err error) error {
	pe := &PersistenceError{Op: op, Err: err}
	if constraint, ok := uniqueViolation(err); ok {
		pe.Constraint = constraint
	}
	return pe
}

// unique違反なら制約名を返す
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// PersistenceErrorかどうか
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
