// Package connectivity decides whether the host has genuine internet
// access by running the ICMP and HTTP probes in priority order.
package connectivity

import (
	"context"

	"github.com/HerbHall/campusnet/internal/event"
	"github.com/HerbHall/campusnet/internal/probe"
	"go.uber.org/zap"
)

// Layers reported in a Report.
const (
	LayerICMP = "icmp"
	LayerHTTP = "http"
)

// HostProber probes a single host. Satisfied by *probe.ICMPProber.
type HostProber interface {
	Probe(ctx context.Context, host string) probe.Verdict
}

// URLProber probes a single URL. Satisfied by *probe.HTTPProber.
type URLProber interface {
	Probe(ctx context.Context, url string) probe.Verdict
}

// Report is the outcome of one classification pass.
type Report struct {
	Reachable bool            `json:"reachable"`
	Layer     string          `json:"layer"` // layer that produced the final verdict
	Verdicts  []probe.Verdict `json:"verdicts"`
}

// Last returns the verdict that decided the report.
func (r Report) Last() probe.Verdict {
	if len(r.Verdicts) == 0 {
		return probe.Verdict{}
	}
	return r.Verdicts[len(r.Verdicts)-1]
}

// Classifier orchestrates the probes.
type Classifier struct {
	hosts    []string
	checkURL string
	icmp     HostProber
	http     URLProber
	events   event.Publisher
	logger   *zap.Logger
}

// NewClassifier creates a classifier that pings hosts in order and falls
// back to a single HTTP probe of checkURL.
func NewClassifier(hosts []string, checkURL string, icmp HostProber, http URLProber, events event.Publisher, logger *zap.Logger) *Classifier {
	if events == nil {
		events = event.Nop{}
	}
	return &Classifier{
		hosts:    append([]string(nil), hosts...),
		checkURL: checkURL,
		icmp:     icmp,
		http:     http,
		events:   events,
		logger:   logger,
	}
}

// Check reports whether the internet is reachable.
func (c *Classifier) Check(ctx context.Context) bool {
	return c.Classify(ctx).Reachable
}

// Classify runs the ICMP probes in order, returning on the first reply.
// ICMP cannot be hijacked by the portal, so one reply is conclusive. When
// every ping fails, exactly one HTTP probe decides: some networks drop
// ICMP outright while still intercepting HTTP.
func (c *Classifier) Classify(ctx context.Context) Report {
	report := Report{Layer: LayerICMP}

	for _, host := range c.hosts {
		if ctx.Err() != nil {
			return c.finish(ctx, report)
		}
		v := c.icmp.Probe(ctx, host)
		report.Verdicts = append(report.Verdicts, v)
		if v.Reachable {
			c.logger.Debug("icmp probe succeeded", zap.String("host", host))
			report.Reachable = true
			return c.finish(ctx, report)
		}
	}

	if ctx.Err() != nil {
		return c.finish(ctx, report)
	}

	c.logger.Debug("all icmp probes failed, trying http check", zap.String("url", c.checkURL))
	report.Layer = LayerHTTP
	v := c.http.Probe(ctx, c.checkURL)
	report.Verdicts = append(report.Verdicts, v)
	report.Reachable = v.Reachable

	if v.Reachable {
		c.logger.Debug("http check succeeded")
	} else {
		c.logger.Warn("network check failed: disconnected",
			zap.String("kind", string(v.Kind)),
			zap.String("detail", v.Detail),
		)
	}
	return c.finish(ctx, report)
}

func (c *Classifier) finish(ctx context.Context, report Report) Report {
	c.events.Publish(ctx, event.New(event.TopicCheckCompleted, "classifier", event.CheckCompleted{
		Reachable: report.Reachable,
		Layer:     report.Layer,
		Detail:    report.Last().String(),
	}))
	return report
}
