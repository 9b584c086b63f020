package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/KCSSB/DontAsk/internal/domain/model"
	"github.com/KCSSB/DontAsk/internal/repository"
)

const (
	maxUserNameLen    = 64
	minPasswordLength = 12
)

var (
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrInvalidUserName    = errors.New("invalid user name")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrWeakPassword       = errors.New("weak password")

	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrUserNameAlreadyExists = errors.New("user name already exists")
)

// 長さを満たしても通さないパスワード（小文字・前後空白除去で比較）
var weakPasswords = map[string]struct{}{
	"123456789012":     {},
	"qwertyuiop12":     {},
	"letmein12345":     {},
	"passwordpassword": {},
	"administrator":    {},
}

type RegisterUserInput struct {
	UserName string
	Email    string
	Password string
}

// PasswordHashは空で返す
type RegisterUserOutput struct {
	User model.User
}

type RegisterUserUsecase struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	idGen    IDGenerator
	clock    Clock
}

func NewRegisterUserUsecase(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	idGen IDGenerator,
	clock Clock,
) *RegisterUserUsecase {
	return &RegisterUserUsecase{
		userRepo: userRepo,
		hasher:   hasher,
		idGen:    idGen,
		clock:    clock,
	}
}

func (u *RegisterUserUsecase) Execute(ctx context.Context, in RegisterUserInput) (RegisterUserOutput, error) {
	var out RegisterUserOutput

	in.Email = strings.TrimSpace(in.Email)
	in.UserName = strings.TrimSpace(in.UserName)
	if err := validateRegistration(in); err != nil {
		return out, err
	}

	//先に見つかれば409。すり抜けた同時登録はunique制約で拾う
	switch _, err := u.userRepo.FindByEmail(ctx, in.Email); {
	case err == nil:
		return out, ErrEmailAlreadyExists
	case !errors.Is(err, repository.ErrUserNotFound):
		return out, err
	}

	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return out, err
	}

	now := u.clock.Now().UTC()
	user := model.User{
		ID:           u.idGen.NewID(),
		UserName:     in.UserName,
		Email:        in.Email,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := u.userRepo.Create(ctx, &user); err != nil {
		return out, conflictFromUnique(err)
	}

	user.PasswordHash = ""
	out.User = user
	return out, nil
}

func validateRegistration(in RegisterUserInput) error {
	if in.Email == "" {
		return ErrInvalidEmailFormat
	}
	//"Name <a@b>" 形式は不可
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return ErrInvalidEmailFormat
	}

	if in.UserName == "" || len(in.UserName) > maxUserNameLen {
		return ErrInvalidUserName
	}

	if len(in.Password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if _, weak := weakPasswords[strings.ToLower(strings.TrimSpace(in.Password))]; weak {
		return ErrWeakPassword
	}
	return nil
}

// users のunique違反をどちらの重複かに振り分ける
func conflictFromUnique(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	if strings.Contains(constraint, "email") {
		return ErrEmailAlreadyExists
	}
	return ErrUserNameAlreadyExists
}
