package probe

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Substrings of a resolved URL that identify the gateway's login portal.
var portalMarkers = []string{"1.1.1.3", "ac_portal"}

// HTTPConfig configures an HTTPProber.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
	// ExpectedDomain must appear in the final URL whenever the check URL
	// redirects. Empty means derive it from the probed URL.
	ExpectedDomain string
}

// HTTPProber fetches a well-known page and decides whether the answer is
// genuine or was served by the captive portal.
type HTTPProber struct {
	client         *http.Client
	userAgent      string
	expectedDomain string
	logger         *zap.Logger
}

// NewHTTPProber creates an HTTP prober. Redirects are followed using the
// client's default policy.
func NewHTTPProber(cfg HTTPConfig, logger *zap.Logger) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
		userAgent:      cfg.UserAgent,
		expectedDomain: strings.ToLower(cfg.ExpectedDomain),
		logger:         logger,
	}
}

// WithTransport swaps the underlying round tripper. Intended for tests.
func (p *HTTPProber) WithTransport(rt http.RoundTripper) *HTTPProber {
	p.client.Transport = rt
	return p
}

// Probe GETs target and reduces the response to a Verdict:
// non-200 final status, a portal marker in the final URL, or a redirect
// that left the expected domain all count as no internet access.
//
// The redirect rule is a plain substring match on the final URL, so a
// legitimate CDN or mirror redirect is also reported as unreachable.
func (p *HTTPProber) Probe(ctx context.Context, target string) Verdict {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return unreachable(target, KindError, "invalid URL: %v", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("http probe failed", zap.String("url", target), zap.Error(err))
		return unreachable(target, KindError, "%v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	final := resp.Request.URL.String()
	finalLower := strings.ToLower(final)
	redirected := resp.Request.Response != nil

	if resp.StatusCode != http.StatusOK {
		p.logger.Debug("http probe bad status", zap.String("url", target), zap.Int("status", resp.StatusCode))
		return unreachable(target, KindHTTPStatus, "status %d", resp.StatusCode)
	}

	for _, marker := range portalMarkers {
		if strings.Contains(finalLower, marker) {
			p.logger.Debug("http probe hijacked to portal", zap.String("url", target), zap.String("final_url", final))
			return unreachable(target, KindHijacked, "redirected to portal %s", final)
		}
	}

	if redirected {
		domain := p.expectedDomain
		if domain == "" {
			domain = ExpectedDomain(target)
		}
		if !strings.Contains(finalLower, domain) {
			p.logger.Debug("http probe unexpected redirect", zap.String("url", target), zap.String("final_url", final))
			return unreachable(target, KindRedirected, "unexpected redirect to %s", final)
		}
	}

	p.logger.Debug("http probe passed", zap.String("url", target), zap.String("final_url", final))
	return reachable(target, final)
}

// ExpectedDomain returns the lowercased host of rawURL without port or a
// leading "www." label: "http://www.baidu.com" yields "baidu.com".
func ExpectedDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
