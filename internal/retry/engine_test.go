package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/HerbHall/campusnet/internal/event"
	"github.com/HerbHall/campusnet/internal/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedLogin returns the scripted results in order and counts calls.
type scriptedLogin struct {
	results []bool
	calls   int
}

func (s *scriptedLogin) Login(_ context.Context, _ portal.Credentials) portal.Result {
	s.calls++
	if s.calls <= len(s.results) && s.results[s.calls-1] {
		return portal.Result{Success: true}
	}
	return portal.Result{Kind: portal.FailureRejected, Reason: fmt.Sprintf("attempt %d rejected", s.calls)}
}

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

var testCreds = portal.Credentials{Username: "20230001", Password: "pw", LoginURL: "http://1.1.1.3/ac_portal/login.php"}

func TestLoginWithRetry_AllFail(t *testing.T) {
	login := &scriptedLogin{}
	sleep := &recordingSleep{}
	policy := Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second, BackoffFactor: 2, Cap: 60 * time.Second}

	ok := NewEngine(policy, login.Login, nil, zap.NewNop()).
		WithSleep(sleep.Sleep).
		LoginWithRetry(context.Background(), testCreds)

	assert.False(t, ok)
	assert.Equal(t, 3, login.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, sleep.delays)
}

func TestLoginWithRetry_SecondAttemptSucceeds(t *testing.T) {
	login := &scriptedLogin{results: []bool{false, true, true, true, true}}
	sleep := &recordingSleep{}

	ok := NewEngine(DefaultPolicy(), login.Login, nil, zap.NewNop()).
		WithSleep(sleep.Sleep).
		LoginWithRetry(context.Background(), testCreds)

	assert.True(t, ok)
	assert.Equal(t, 2, login.calls, "attempts 3-5 must not run")
	assert.Equal(t, []time.Duration{5 * time.Second}, sleep.delays, "no sleep after the successful attempt")
}

func TestLoginWithRetry_FirstAttemptSucceeds(t *testing.T) {
	login := &scriptedLogin{results: []bool{true}}
	sleep := &recordingSleep{}

	ok := NewEngine(DefaultPolicy(), login.Login, nil, zap.NewNop()).
		WithSleep(sleep.Sleep).
		LoginWithRetry(context.Background(), testCreds)

	assert.True(t, ok)
	assert.Equal(t, 1, login.calls)
	assert.Empty(t, sleep.delays)
}

func TestLoginWithRetry_DefaultScheduleCaps(t *testing.T) {
	login := &scriptedLogin{}
	sleep := &recordingSleep{}
	policy := Policy{MaxAttempts: 6, BaseDelay: 5 * time.Second, BackoffFactor: 2, Cap: 60 * time.Second}

	NewEngine(policy, login.Login, nil, zap.NewNop()).
		WithSleep(sleep.Sleep).
		LoginWithRetry(context.Background(), testCreds)

	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second,
	}, sleep.delays)
}

func TestLoginWithRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	login := &scriptedLogin{}

	sleepCalls := 0
	cancelOnSleep := func(ctx context.Context, _ time.Duration) error {
		sleepCalls++
		cancel()
		return ctx.Err()
	}

	ok := NewEngine(DefaultPolicy(), login.Login, nil, zap.NewNop()).
		WithSleep(cancelOnSleep).
		LoginWithRetry(ctx, testCreds)

	assert.False(t, ok)
	assert.Equal(t, 1, login.calls, "no attempts after a stop request")
	assert.Equal(t, 1, sleepCalls)
}

func TestLoginWithRetry_RealSleepIsInterruptible(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	login := &scriptedLogin{}
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Hour, BackoffFactor: 2, Cap: time.Hour}

	start := time.Now()
	ok := NewEngine(policy, login.Login, nil, zap.NewNop()).LoginWithRetry(ctx, testCreds)

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLoginWithRetry_PublishesEvents(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	var topics []string
	var attempts []event.LoginAttempt
	bus.SubscribeAll(func(_ context.Context, e event.Event) {
		topics = append(topics, e.Topic)
		if a, ok := e.Payload.(event.LoginAttempt); ok {
			attempts = append(attempts, a)
		}
	})

	login := &scriptedLogin{}
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Second, BackoffFactor: 2, Cap: time.Minute}
	NewEngine(policy, login.Login, bus, zap.NewNop()).
		WithSleep((&recordingSleep{}).Sleep).
		LoginWithRetry(context.Background(), testCreds)

	require.Equal(t, []string{event.TopicLoginAttempt, event.TopicLoginAttempt, event.TopicLoginExhausted}, topics)
	require.Len(t, attempts, 2)
	assert.Equal(t, 2, attempts[1].Attempt)
	assert.Equal(t, "attempt 2 rejected", attempts[1].Reason)
	assert.Equal(t, "20230001", attempts[0].Username)
}

func TestNewEngine_ClampsAttempts(t *testing.T) {
	login := &scriptedLogin{}
	e := NewEngine(Policy{MaxAttempts: 0}, login.Login, nil, zap.NewNop())

	assert.Equal(t, 1, e.Policy().MaxAttempts)
	assert.False(t, e.LoginWithRetry(context.Background(), testCreds))
	assert.Equal(t, 1, login.calls)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
