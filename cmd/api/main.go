package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/KCSSB/DontAsk/internal/config"
	"github.com/KCSSB/DontAsk/internal/handler"
	"github.com/KCSSB/DontAsk/internal/infra/db"
	infraRepo "github.com/KCSSB/DontAsk/internal/infra/repository"
	"github.com/KCSSB/DontAsk/internal/server"
	auth "github.com/KCSSB/DontAsk/internal/usecase/auth_usecase"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

// シャットダウンの待ち時間
const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.New("api")
	logger.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`)

	//.envは無くてもよい（本番は環境変数）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnj(log.JSON{"op": "startup", "error": err.Error()})
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalj(log.JSON{"op": "startup", "error": err.Error()})
	}
	logger.SetLevel(logLevel(cfg.LogLevel))

	//DB接続
	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalj(log.JSON{"op": "db", "error": err.Error()})
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Fatalj(log.JSON{"op": "migrate", "error": err.Error()})
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	idGen := auth.UUIDGenerator{}
	clock := auth.SystemClock{}
	tokenHasher := auth.NewSHA256TokenHasher([]byte(cfg.TokenHashKey))
	issuer := auth.NewJWTIssuer([]byte(cfg.JWTSecret), cfg.AccessTokenLifetime, clock)

	//bcrypt（会員登録：Hash / ログイン：Verify）
	pwHasher := auth.NewBcryptPasswordHasher(12)
	verifier := auth.NewBcryptPasswordVerifier()

	//refresh token
	store := auth.NewRefreshTokenStore(txm, tokenHasher, idGen, clock, cfg.RefreshTokenLifetime)
	tokenSvc := auth.NewRefreshTokenService(store, tokenHasher, issuer, clock, logger)
	reaper := auth.NewExpiredTokenReaper(store, cfg.ReaperInterval, logger)

	//Usecase生成
	registerUC := auth.NewRegisterUserUsecase(userRepo, pwHasher, idGen, clock)
	loginUC := auth.NewLoginUsecase(userRepo, verifier, tokenSvc, issuer, clock)

	//Handler生成
	authH := handler.NewAuthHandler(registerUC, loginUC, tokenSvc, userRepo, clock, cfg.RefreshTokenLifetime, cfg.CookieSecure)
	srv := server.New(cfg.Port, logger, authH, []byte(cfg.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//reaperはリクエスト処理と独立して回す
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Errorj(log.JSON{"op": "server", "error": err.Error()})
		}
		stop()
	}

	//Server停止
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorj(log.JSON{"op": "shutdown", "error": err.Error()})
	}

	wg.Wait()

	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Infoj(log.JSON{"op": "shutdown", "status": "done"})
}

func logLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
