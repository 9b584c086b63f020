package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"
	"github.com/KCSSB/DontAsk/internal/repository"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Email    string
	Password string
}

// token 形（JwtAccessToken相当）
type JwtAccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handlerがJSONにして返す
type LoginOutput struct {
	User  model.User     `json:"user"`
	Token JwtAccessToken `json:"token"`
}

// handlerがCookieに詰めるために必要な値
type LoginSideEffect struct {
	PlainRefreshToken string
}

// メールまたはパスワードが違う
var ErrInvalidCredentials = errors.New("invalid credentials")

// ログイン時のリフレッシュトークン発行
type RefreshTokenIssuer interface {
	IssueForLogin(ctx context.Context, user *model.User) (string, error)
}

type LoginUsecase struct {
	userRepo repository.UserRepository
	verifier PasswordVerifier
	tokens   RefreshTokenIssuer
	issuer   AccessTokenIssuer
	clock    Clock
}

func NewLoginUsecase(
	userRepo repository.UserRepository,
	verifier PasswordVerifier,
	tokens RefreshTokenIssuer,
	issuer AccessTokenIssuer,
	clock Clock,
) *LoginUsecase {
	return &LoginUsecase{
		userRepo: userRepo,
		verifier: verifier,
		tokens:   tokens,
		issuer:   issuer,
		clock:    clock,
	}
}

// ログイン処理を実行する
func (u *LoginUsecase) Execute(ctx context.Context, in LoginInput) (LoginOutput, LoginSideEffect, error) {
	var out LoginOutput
	var side LoginSideEffect

	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return out, side, ErrInvalidCredentials
	}

	//emailでユーザー取得
	user, err := u.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return out, side, ErrInvalidCredentials
		}
		return out, side, err
	}

	//パスワード照合
	if ok := u.verifier.Verify(in.Password, user.PasswordHash); !ok {
		return out, side, ErrInvalidCredentials
	}

	//RefreshToken発行（DBにはhashだけ）
	plainRefresh, err := u.tokens.IssueForLogin(ctx, user)
	if err != nil {
		return out, side, err
	}

	//AccessToken発行
	accessToken, accessExp, err := u.issuer.Issue(user)
	if err != nil {
		return out, side, err
	}

	//出力（passwordは返さない）
	safeUser := *user
	safeUser.PasswordHash = ""

	out.User = safeUser
	out.Token = JwtAccessToken{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessExp.Sub(u.clock.Now().UTC()).Round(time.Second).Seconds()),
	}

	side.PlainRefreshToken = plainRefresh
	return out, side, nil
}
