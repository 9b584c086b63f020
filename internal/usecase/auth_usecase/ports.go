package auth

import (
	"time"

	"github.com/google/uuid"
)

// ユーザー・トークンのID採番
type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}

// uuid v4
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// 時刻は常にUTC
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
