package auth

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
)

// 1回の掃除にかける上限
const defaultSweepTimeout = 30 * time.Second

// 期限切れ・失効済みのリフレッシュトークンを定期的に消すバックグラウンド処理。
// リクエスト処理とはstoreを共有するだけで独立している
type ExpiredTokenReaper struct {
	store        *RefreshTokenStore
	interval     time.Duration
	sweepTimeout time.Duration
	logger       *log.Logger
}

// DI
func NewExpiredTokenReaper(store *RefreshTokenStore, interval time.Duration, logger *log.Logger) *ExpiredTokenReaper {
	return &ExpiredTokenReaper{
		store:        store,
		interval:     interval,
		sweepTimeout: defaultSweepTimeout,
		logger:       logger,
	}
}

// ctxがキャンセルされるまで interval ごとに掃除する。
// 実行中の掃除は最後まで走らせ、キャンセル後に次のtickは始めない
func (r *ExpiredTokenReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Infoj(log.JSON{"op": "reaper", "status": "started", "interval": r.interval.String()})

	for {
		select {
		case <-ctx.Done():
			r.logger.Infoj(log.JSON{"op": "reaper", "status": "stopped"})
			return
		case <-ticker.C:
			//シャットダウンでは中断しない
			sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sweepTimeout)
			_, _ = r.SweepOnce(sweepCtx)
			cancel()
		}
	}
}

// 1回分の掃除。エラーはログに出して返すだけ（ループは止めない）
func (r *ExpiredTokenReaper) SweepOnce(ctx context.Context) (int64, error) {
	deleted, err := r.store.DeleteExpiredOrRevoked(ctx)
	if err != nil {
		r.logger.Errorj(log.JSON{"op": "reaper", "error": err.Error()})
		return 0, err
	}

	r.logger.Infoj(log.JSON{"op": "reaper", "deleted": deleted})
	return deleted, nil
}
