package model

import "time"

// DBに保存するのはハッシュだけ。平文は発行時に一度だけ返す。
type RefreshToken struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string    `json:"userId" gorm:"type:uuid;not null;index"`
	User      *User     `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	TokenHash string    `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	IsRevoked bool      `json:"isRevoked" gorm:"not null;default:false;index"`
}

// 未失効かつ期限内なら使える
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// 期限切れ（expires_at <= now）
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
