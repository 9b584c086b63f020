package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/KCSSB/DontAsk/internal/domain/model"
	"github.com/KCSSB/DontAsk/internal/middleware"
	"github.com/KCSSB/DontAsk/internal/repository"
	auth "github.com/KCSSB/DontAsk/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// refresh token cookie
const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
)

type RegisterUsecase interface {
	Execute(ctx context.Context, in auth.RegisterUserInput) (auth.RegisterUserOutput, error)
}

type LoginUsecase interface {
	Execute(ctx context.Context, in auth.LoginInput) (auth.LoginOutput, auth.LoginSideEffect, error)
}

// ローテーションとログアウト
type RefreshTokenService interface {
	Rotate(ctx context.Context, presented string) (auth.RotateResult, error)
	Revoke(ctx context.Context, presented string) error
}

type AuthHandler struct {
	registerUC   RegisterUsecase
	loginUC      LoginUsecase
	tokens       RefreshTokenService
	users        repository.UserRepository
	clock        auth.Clock
	refreshTTL   time.Duration // cookie の有効期限
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(
	registerUC RegisterUsecase,
	loginUC LoginUsecase,
	tokens RefreshTokenService,
	users repository.UserRepository,
	clock auth.Clock,
	refreshTTL time.Duration,
	cookieSecure bool,
) *AuthHandler {
	return &AuthHandler{
		registerUC:   registerUC,
		loginUC:      loginUC,
		tokens:       tokens,
		users:        users,
		clock:        clock,
		refreshTTL:   refreshTTL,
		cookieSecure: cookieSecure,
	}
}

// /auth/register のリクエストボディ。
type registerRequest struct {
	UserName string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// /auth/login のリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type userResponse struct {
	User model.User `json:"user"`
}

type tokenResponse struct {
	Token auth.JwtAccessToken `json:"token"`
}

// /auth 配下を登録
func (h *AuthHandler) RegisterRoutes(e *echo.Echo, jwtSecret []byte) {
	g := e.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/refresh", h.refresh)
	g.POST("/logout", h.logout)
	g.GET("/me", h.me, middleware.AuthJWT(jwtSecret))
}

func (h *AuthHandler) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "VALIDATION_ERROR"})
	}

	out, err := h.registerUC.Execute(c.Request().Context(), auth.RegisterUserInput{
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, userResponse{User: out.User})
}

func (h *AuthHandler) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "VALIDATION_ERROR"})
	}

	out, side, err := h.loginUC.Execute(c.Request().Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return writeError(c, err)
	}

	h.setRefreshCookie(c, side.PlainRefreshToken)

	//JSONレスポンス（user + token）
	return c.JSON(http.StatusOK, out)
}

// cookieのrefresh tokenをローテーションする
func (h *AuthHandler) refresh(c echo.Context) error {
	presented, ok := readRefreshCookie(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED"})
	}

	res, err := h.tokens.Rotate(c.Request().Context(), presented)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.clearRefreshCookie(c)
		}
		return writeError(c, err)
	}

	h.setRefreshCookie(c, res.RefreshToken)

	return c.JSON(http.StatusOK, tokenResponse{Token: auth.JwtAccessToken{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(res.AccessTokenExpiresAt.Sub(h.clock.Now().UTC()).Round(time.Second).Seconds()),
	}})
}

func (h *AuthHandler) logout(c echo.Context) error {
	presented, ok := readRefreshCookie(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED"})
	}

	if err := h.tokens.Revoke(c.Request().Context(), presented); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.clearRefreshCookie(c)
		}
		return writeError(c, err)
	}

	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// AuthJWTが入れたuser_idで本人を返す
func (h *AuthHandler) me(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED"})
	}

	user, err := h.users.FindByID(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED"})
		}
		return writeError(c, err)
	}

	safeUser := *user
	safeUser.PasswordHash = ""
	return c.JSON(http.StatusOK, userResponse{User: safeUser})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, plainRefresh string) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    plainRefresh,
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.refreshTTL.Seconds()),
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func readRefreshCookie(c echo.Context) (string, bool) {
	ck, err := c.Cookie(refreshCookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

func getUserIDFromContext(c echo.Context) (string, bool) {
	id, ok := c.Get(middleware.CtxUserIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// usecaseのエラーをHTTPに変換
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED"})
	case errors.Is(err, auth.ErrInvalidEmailFormat),
		errors.Is(err, auth.ErrInvalidUserName),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrWeakPassword):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "VALIDATION_ERROR"})
	case errors.Is(err, auth.ErrEmailAlreadyExists), errors.Is(err, auth.ErrUserNameAlreadyExists):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "CONFLICT"})
	}

	//PersistenceError含め500
	c.Logger().Errorj(log.JSON{"op": c.Path(), "error": err.Error()})
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL"})
}
