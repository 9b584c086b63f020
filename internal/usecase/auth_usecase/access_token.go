package auth

import (
	"errors"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
)

// アクセストークンのclaims
type AccessClaims struct {
	UserID   string `json:"userId"`
	UserName string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(user *model.User) (token string, expiresAt time.Time, err error)
}

// HS256で署名するJWT issuer。状態を持たない、I/Oなし
type JWTIssuer struct {
	secret   []byte
	lifetime time.Duration
	clock    Clock
}

// DI
func NewJWTIssuer(secret []byte, lifetime time.Duration, clock Clock) *JWTIssuer {
	return &JWTIssuer{
		secret:   secret,
		lifetime: lifetime,
		clock:    clock,
	}
}

// exp = 発行時刻 + lifetime
func (i *JWTIssuer) Issue(user *model.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user is required")
	}

	now := i.clock.Now().UTC()
	expiresAt := now.Add(i.lifetime)

	claims := AccessClaims{
		UserID:   user.ID,
		UserName: user.UserName,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// 署名と期限だけ検証する（issuer/audienceは見ない）。
// 検証は認証ミドルウェアの仕事で、ここは共通処理だけ持つ。
func ParseAccessToken(secret []byte, raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ExpiresAt == nil {
		return nil, errors.New("missing exp")
	}
	if claims.UserID == "" {
		return nil, errors.New("missing userId")
	}

	return claims, nil
}
