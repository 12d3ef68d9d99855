package users

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hijjiri/todo-service/internal/domain/user"
)

// RetryPolicy は「何回・どのくらい待つか」をまとめた設定。
type RetryPolicy struct {
	MaxAttempts int           // 例: 3（合計3回試す）。1 ならリトライなし
	BaseBackoff time.Duration // 例: 50ms
	MaxBackoff  time.Duration // 例: 500ms
}

// DefaultRetry はリトライしない設定（存在確認は 1 回だけ）。
var DefaultRetry = RetryPolicy{
	MaxAttempts: 1,
	BaseBackoff: 50 * time.Millisecond,
	MaxBackoff:  500 * time.Millisecond,
}

// RetryingChecker は冪等な GET の存在確認だけを、回数上限付きで再試行する。
type RetryingChecker struct {
	next   user.Checker
	policy RetryPolicy
	logger *zap.Logger
}

func NewRetryingChecker(next user.Checker, policy RetryPolicy, logger *zap.Logger) *RetryingChecker {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = 10 * time.Millisecond
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingChecker{next: next, policy: policy, logger: logger}
}

// CheckExists は retryable な Unavailable のみをバックオフ付きで再実行する。
// - ctx の deadline/cancel を尊重して即中断する
// - Exists / NotFound は確定結果なのでそのまま返す
func (r *RetryingChecker) CheckExists(ctx context.Context, userID int64) user.Result {
	var res user.Result
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		// ctx が終了していれば即返す
		if err := ctx.Err(); err != nil {
			return user.Unavailable(user.KindUnreachable, 0, err)
		}

		res = r.next.CheckExists(ctx, userID)
		if !isRetryable(res) || attempt == r.policy.MaxAttempts {
			return res
		}

		sleep := backoff(r.policy.BaseBackoff, r.policy.MaxBackoff, attempt)
		r.logger.Info("retrying users service lookup",
			zap.Int64("user_id", userID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", sleep),
			zap.Error(res.Err),
		)
		if err := sleepWithContext(ctx, sleep); err != nil {
			return res
		}
	}
	return res
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff は指数バックオフ（ジッタ無し・安全側の簡易版）
// attempt: 1,2,3...
func backoff(base, max time.Duration, attempt int) time.Duration {
	// base * 2^(attempt-1)
	b := base
	for i := 1; i < attempt; i++ {
		b *= 2
		if b >= max {
			return max
		}
	}
	if b > max {
		return max
	}
	return b
}

// isRetryable は “一時的に起きがちな” 失敗だけ true。
// 応答なし、または 502/503/504 のゲートウェイ系。
func isRetryable(res user.Result) bool {
	if res.Status != user.StatusUnavailable || res.Err == nil {
		return false
	}
	if res.Err.Kind == user.KindUnreachable {
		return true
	}
	switch res.Err.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
