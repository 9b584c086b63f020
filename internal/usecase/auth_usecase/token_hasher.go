package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// リフレッシュトークンの平文をDB保存用のハッシュにする。
// 乱数なのでソルト不要。保存と検索で同じ値になる（決定的）
type TokenHasher interface {
	Hash(secret string) string
}

// SHA-256（keyがあればHMAC-SHA256）を16進で返す
type SHA256TokenHasher struct {
	key []byte
}

// DI
func NewSHA256TokenHasher(key []byte) *SHA256TokenHasher {
	return &SHA256TokenHasher{key: key}
}

func (h *SHA256TokenHasher) Hash(secret string) string {
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:])
	}

	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}
