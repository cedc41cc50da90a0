package retry

import (
	"context"
	"time"

	"github.com/HerbHall/campusnet/internal/event"
	"github.com/HerbHall/campusnet/internal/portal"
	"go.uber.org/zap"
)

// LoginFunc performs a single login attempt. Satisfied by
// (*portal.Authenticator).Login.
type LoginFunc func(ctx context.Context, creds portal.Credentials) portal.Result

// SleepFunc waits for d or until ctx is done, returning ctx.Err() if the
// wait was cut short.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Engine turns a single-shot login into a resilient one.
type Engine struct {
	policy Policy
	login  LoginFunc
	sleep  SleepFunc
	events event.Publisher
	logger *zap.Logger
}

// NewEngine creates a retry engine around login.
func NewEngine(policy Policy, login LoginFunc, events event.Publisher, logger *zap.Logger) *Engine {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if events == nil {
		events = event.Nop{}
	}
	return &Engine{
		policy: policy,
		login:  login,
		sleep:  Sleep,
		events: events,
		logger: logger,
	}
}

// WithSleep replaces the backoff sleep. Intended for tests.
func (e *Engine) WithSleep(fn SleepFunc) *Engine {
	e.sleep = fn
	return e
}

// Policy returns the engine's retry policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// LoginWithRetry attempts to log in up to MaxAttempts times, returning true
// as soon as one attempt succeeds. Cancelling ctx during a backoff wait
// abandons the remaining attempts and returns false.
func (e *Engine) LoginWithRetry(ctx context.Context, creds portal.Credentials) bool {
	maxAttempts := e.policy.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.logger.Info("login attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
		)

		result := e.login(ctx, creds)
		e.events.Publish(ctx, event.New(event.TopicLoginAttempt, "retry", event.LoginAttempt{
			Username:    creds.Username,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Success:     result.Success,
			Reason:      result.Reason,
		}))

		if result.Success {
			e.logger.Info("login succeeded, network restored", zap.Int("attempt", attempt))
			e.events.Publish(ctx, event.New(event.TopicLoginSucceeded, "retry", event.LoginFinished{
				Username: creds.Username,
				Attempts: attempt,
			}))
			return true
		}

		if attempt == maxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		e.logger.Warn("login failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("reason", result.Reason),
			zap.Duration("delay", delay),
		)
		if err := e.sleep(ctx, delay); err != nil {
			e.logger.Info("login retry aborted", zap.Int("attempt", attempt), zap.Error(err))
			return false
		}
	}

	e.logger.Error("all login attempts failed", zap.Int("max_attempts", maxAttempts))
	e.events.Publish(ctx, event.New(event.TopicLoginExhausted, "retry", event.LoginFinished{
		Username: creds.Username,
		Attempts: maxAttempts,
	}))
	return false
}
