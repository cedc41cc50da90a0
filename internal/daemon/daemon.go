// Package daemon runs the keep-alive loop: check connectivity, log back in
// when it is lost, sleep, repeat until asked to stop.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/campusnet/internal/event"
	"github.com/HerbHall/campusnet/internal/portal"
	"github.com/HerbHall/campusnet/internal/retry"
	"go.uber.org/zap"
)

// DefaultRecoveryPause is the wait after an iteration aborted by a panic.
const DefaultRecoveryPause = 5 * time.Second

// Checker reports whether the internet is reachable.
type Checker interface {
	Check(ctx context.Context) bool
}

// Reauthenticator logs in again, retrying internally.
type Reauthenticator interface {
	LoginWithRetry(ctx context.Context, creds portal.Credentials) bool
}

// Config holds the loop timing.
type Config struct {
	CheckInterval time.Duration
	RecoveryPause time.Duration
}

// State is the daemon's observable state. It is owned by the loop and
// never persisted across restarts.
type State struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Reachable           bool      `json:"reachable"`
	Checks              int       `json:"checks"`
	LastCheck           time.Time `json:"last_check,omitzero"`
	LastRecovery        time.Time `json:"last_recovery,omitzero"`
}

// Daemon is the top-level polling state machine.
type Daemon struct {
	cfg     Config
	checker Checker
	reauth  Reauthenticator
	creds   portal.Credentials
	sleep   retry.SleepFunc
	events  event.Publisher
	logger  *zap.Logger

	mu    sync.RWMutex
	state State
}

// New creates a daemon. creds are held for the daemon's lifetime.
func New(cfg Config, checker Checker, reauth Reauthenticator, creds portal.Credentials, events event.Publisher, logger *zap.Logger) *Daemon {
	if cfg.RecoveryPause <= 0 {
		cfg.RecoveryPause = DefaultRecoveryPause
	}
	if events == nil {
		events = event.Nop{}
	}
	return &Daemon{
		cfg:     cfg,
		checker: checker,
		reauth:  reauth,
		creds:   creds,
		sleep:   retry.Sleep,
		events:  events,
		logger:  logger,
	}
}

// WithSleep replaces the inter-poll sleep. Intended for tests.
func (d *Daemon) WithSleep(fn retry.SleepFunc) *Daemon {
	d.sleep = fn
	return d
}

// Run polls until ctx is cancelled, which is the only way it returns.
// A panic inside one iteration is logged and followed by a short pause
// instead of ending the loop.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon started",
		append(d.creds.Fields(), zap.Duration("check_interval", d.cfg.CheckInterval))...,
	)

	for ctx.Err() == nil {
		pause := d.cfg.CheckInterval
		if err := d.safeTick(ctx); err != nil {
			d.logger.Error("unexpected error in main loop", zap.Error(err))
			d.logger.Info("recovering", zap.Duration("pause", d.cfg.RecoveryPause))
			pause = d.cfg.RecoveryPause
		}
		if err := d.sleep(ctx, pause); err != nil {
			break
		}
	}

	d.logger.Info("daemon stopped")
	return nil
}

func (d *Daemon) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			d.events.Publish(ctx, event.New(event.TopicTickPanicked, "daemon", event.TickPanicked{Panic: fmt.Sprint(r)}))
		}
	}()
	d.Tick(ctx)
	return nil
}

// Tick runs one polling iteration.
func (d *Daemon) Tick(ctx context.Context) {
	reachable := d.checker.Check(ctx)
	if ctx.Err() != nil {
		return
	}

	d.mu.Lock()
	d.state.Checks++
	d.state.LastCheck = time.Now().UTC()
	d.state.Reachable = reachable
	failures := d.state.ConsecutiveFailures
	if reachable {
		d.state.ConsecutiveFailures = 0
		if failures > 0 {
			d.state.LastRecovery = d.state.LastCheck
		}
	} else {
		d.state.ConsecutiveFailures++
		failures = d.state.ConsecutiveFailures
	}
	d.mu.Unlock()

	if reachable {
		if failures > 0 {
			d.logger.Info("network restored", zap.Int("failed_checks", failures))
			d.events.Publish(ctx, event.New(event.TopicConnectivityRestored, "daemon", event.ConnectivityRestored{
				FailedChecks: failures,
				Via:          "probe",
			}))
		} else {
			d.logger.Debug("network status: OK")
		}
		return
	}

	d.logger.Warn("network disconnected", zap.Int("failure", failures))
	d.events.Publish(ctx, event.New(event.TopicConnectivityLost, "daemon", event.ConnectivityLost{
		ConsecutiveFailures: failures,
	}))

	if !d.reauth.LoginWithRetry(ctx, d.creds) {
		if ctx.Err() == nil {
			d.logger.Error("login failed, will retry on next check")
		}
		return
	}

	d.mu.Lock()
	d.state.ConsecutiveFailures = 0
	d.state.Reachable = true
	d.state.LastRecovery = time.Now().UTC()
	d.mu.Unlock()

	d.events.Publish(ctx, event.New(event.TopicConnectivityRestored, "daemon", event.ConnectivityRestored{
		FailedChecks: failures,
		Via:          "login",
	}))
}

// Snapshot returns a copy of the current state.
func (d *Daemon) Snapshot() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Ready reports whether at least one check has completed.
func (d *Daemon) Ready(context.Context) error {
	if d.Snapshot().Checks == 0 {
		return fmt.Errorf("no connectivity check has completed yet")
	}
	return nil
}
