// Package retry 提供固定次数的有界重试，等待间隔固定或线性增长。
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy 描述重试策略：最多 Attempts 次，每次失败后等待 Delay；
// Linear 为 true 时第 n 次失败后等待 Delay*n。
type Policy struct {
	Attempts int
	Delay    time.Duration
	Linear   bool
}

// wait 返回第 attempt 次失败后的等待时间。
func (p Policy) wait(attempt int) time.Duration {
	if p.Linear {
		return p.Delay * time.Duration(attempt)
	}
	return p.Delay
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent 标记一个不应重试的错误。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do 执行 fn 直到成功、遇到 Permanent 错误、次数用尽或 ctx 结束。
// 返回最后一次的错误（去掉 Permanent 包装）。
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(p.wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
