package model

import "time"

// ボード/タスクの所有者。トークン側からのみ参照する（User→RefreshTokenの参照は持たない）
type User struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserName     string    `json:"userName" gorm:"type:varchar(64);uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"not null"`
}
