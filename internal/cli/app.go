package cli

import (
	"github.com/HerbHall/campusnet/internal/config"
	"github.com/HerbHall/campusnet/internal/connectivity"
	"github.com/HerbHall/campusnet/internal/daemon"
	"github.com/HerbHall/campusnet/internal/event"
	"github.com/HerbHall/campusnet/internal/metrics"
	"github.com/HerbHall/campusnet/internal/portal"
	"github.com/HerbHall/campusnet/internal/probe"
	"github.com/HerbHall/campusnet/internal/retry"
	"go.uber.org/zap"
)

// app is the composition root shared by run and check.
type app struct {
	bus        *event.Bus
	metrics    *metrics.Metrics
	classifier *connectivity.Classifier
	engine     *retry.Engine
	daemon     *daemon.Daemon
}

// newApp wires the core components from s. Optional outputs such as
// history, webhooks and the status server are attached by the run command.
func newApp(s *config.Settings, logger *zap.Logger) *app {
	bus := event.NewBus(logger.Named("events"))

	m := metrics.New()
	m.Subscribe(bus)

	classifier := connectivity.NewClassifier(
		s.DNSServers,
		s.HTTPCheckURL,
		probe.NewICMPProber(s.DNSTimeoutDuration(), logger.Named("icmp")),
		probe.NewHTTPProber(s.HTTPProbeConfig(), logger.Named("http")),
		bus,
		logger.Named("classifier"),
	)

	auth := portal.NewAuthenticator(s.UserAgent, logger.Named("portal"))
	engine := retry.NewEngine(s.RetryPolicy(), auth.Login, bus, logger.Named("retry"))

	d := daemon.New(
		daemon.Config{CheckInterval: s.CheckIntervalDuration()},
		classifier,
		engine,
		s.Credentials(),
		bus,
		logger.Named("daemon"),
	)

	return &app{
		bus:        bus,
		metrics:    m,
		classifier: classifier,
		engine:     engine,
		daemon:     d,
	}
}
