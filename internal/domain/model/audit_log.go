package model

import "time"

// トークン操作の種類。
type AuditAction string

const (
	//ログインでリフレッシュトークンを発行した。
	AuditActionLogin AuditAction = "LOGIN"
	//ローテーションで旧トークンを失効し新トークンを発行した。
	AuditActionRefreshRotated AuditAction = "REFRESH_ROTATED"
	//失効済みトークンが提示された（リプレイの疑い）。
	AuditActionRefreshRejected AuditAction = "REFRESH_REJECTED"
	//ログアウトでトークンを削除した。
	AuditActionLogout AuditAction = "LOGOUT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceRefreshToken AuditResourceType = "refresh_token"
)

// 監査ログ。
// 「誰の」「どのトークンに」「何が起きたか」を残す。平文トークンは入れない。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//トークンの持ち主。
	ActorUserID string `gorm:"type:uuid;not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null" json:"resource_type"`

	//対象トークンのID。
	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//補足（JSON文字列）。
	Detail string `gorm:"type:text" json:"detail"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
