package db

import (
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		// 時刻はUTCで統一
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Warn),
	})
}

// Migrate はトークン関連のテーブルを作る。usersを先に作る（refresh_tokensがFKを張る）
func Migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.AuditLog{},
	)
}
