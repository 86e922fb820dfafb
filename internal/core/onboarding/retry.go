package onboarding

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 50 * time.Millisecond
	defaultMaxDelay    = time.Second
)

// RetryPolicy は有界リトライの試行回数とバックオフ曲線を定義します。
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable が nil の場合はすべてのエラーを再試行します。
	Retryable func(error) bool
	// OnRetry は再試行の直前に呼ばれます。attempt は失敗した試行番号 (1 始まり) です。
	OnRetry func(attempt int, err error)
	// Jitter は [0,1) の乱数源です。nil の場合 math/rand/v2 を使います。
	Jitter func() float64
}

// DefaultRetryPolicy は 5 回・基準 50ms・上限 1s のポリシーを返します。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Jitter == nil {
		p.Jitter = rand.Float64
	}
	return p
}

// Backoff は attempt 回目の失敗後に待機する時間を返します。
// 指数的に増加する上限 min(BaseDelay*2^(attempt-1), MaxDelay) の後半区間からランダムに選びます。
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	ceiling := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if ceiling > float64(p.MaxDelay) {
		ceiling = float64(p.MaxDelay)
	}
	half := ceiling / 2
	return time.Duration(half + p.Jitter()*half)
}

// Retry は fn を成功するか再試行不能なエラーが返るか試行回数を使い切るまで繰り返します。
// 試行回数を使い切った場合は最後のエラーをそのまま返します。
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	p := policy.normalized()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if waitErr := sleep(ctx, p.Backoff(attempt)); waitErr != nil {
			return waitErr
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
