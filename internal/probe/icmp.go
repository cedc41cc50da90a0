package probe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// PingFunc sends one echo request to host and reports whether a reply
// arrived within timeout.
type PingFunc func(ctx context.Context, host string, timeout time.Duration) (bool, error)

// ICMPProber checks host reachability with a single ICMP echo.
type ICMPProber struct {
	timeout time.Duration
	ping    PingFunc
	logger  *zap.Logger
}

// NewICMPProber creates an ICMP prober backed by pro-bing.
func NewICMPProber(timeout time.Duration, logger *zap.Logger) *ICMPProber {
	return &ICMPProber{
		timeout: timeout,
		ping:    pingOnce,
		logger:  logger,
	}
}

// WithPingFunc replaces the echo implementation. Intended for tests.
func (p *ICMPProber) WithPingFunc(fn PingFunc) *ICMPProber {
	p.ping = fn
	return p
}

// Probe pings host once. Timeouts, unreachable hosts and pinger setup
// errors (e.g. missing socket permissions) all yield an unreachable verdict.
func (p *ICMPProber) Probe(ctx context.Context, host string) Verdict {
	start := time.Now()
	ok, err := p.ping(ctx, host, p.timeout)
	elapsed := time.Since(start)

	if err != nil {
		p.logger.Debug("icmp probe failed", zap.String("host", host), zap.Error(err))
		return unreachable(host, KindError, "%v", err)
	}
	if !ok {
		p.logger.Debug("icmp probe got no reply",
			zap.String("host", host),
			zap.Duration("timeout", p.timeout),
		)
		return unreachable(host, KindUnreachable, "no reply within %s", p.timeout)
	}

	p.logger.Debug("icmp probe succeeded", zap.String("host", host), zap.Duration("rtt", elapsed))
	return reachable(host, fmt.Sprintf("reply in %s", elapsed.Round(time.Millisecond)))
}

// pingOnce runs a single-packet pro-bing pinger. Windows needs a raw
// socket; elsewhere the unprivileged UDP mode works without root.
func pingOnce(ctx context.Context, host string, timeout time.Duration) (bool, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			return false, fmt.Errorf("ping %s: %w", host, err)
		}
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return false, ctx.Err()
	}

	return pinger.Statistics().PacketsRecv > 0, nil
}
