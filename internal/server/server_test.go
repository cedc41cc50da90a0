package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/campusnet/internal/daemon"
	"github.com/HerbHall/campusnet/internal/event"
	"github.com/HerbHall/campusnet/internal/metrics"
	"github.com/HerbHall/campusnet/internal/portal"
	"github.com/HerbHall/campusnet/internal/ws"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

type fixedStatus struct{ state daemon.State }

func (f fixedStatus) Snapshot() daemon.State { return f.state }

func newTestServer(cfg Config, deps Deps) *Server {
	return New(cfg, deps, zap.NewNop())
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(Config{}, Deps{})
	w := serve(s, httptest.NewRequest("GET", "/healthz", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"alive"`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if w.Header().Get("X-Campusnet-Version") == "" {
		t.Error("expected version header")
	}
}

func TestHandleReadyz(t *testing.T) {
	tests := []struct {
		name  string
		ready ReadinessChecker
		want  int
	}{
		{name: "no checker", ready: nil, want: http.StatusOK},
		{name: "ready", ready: func(context.Context) error { return nil }, want: http.StatusOK},
		{
			name:  "not ready",
			ready: func(context.Context) error { return errors.New("no connectivity check has completed yet") },
			want:  http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Config{}, Deps{Ready: tt.ready})
			w := serve(s, httptest.NewRequest("GET", "/readyz", http.NoBody))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHandleReadyz_WithDaemon(t *testing.T) {
	d := daemon.New(daemon.Config{CheckInterval: time.Minute}, nil, nil, testCreds(), nil, zap.NewNop())
	s := newTestServer(Config{}, Deps{Ready: d.Ready})

	w := serve(s, httptest.NewRequest("GET", "/readyz", http.NoBody))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before the first check", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	state := daemon.State{ConsecutiveFailures: 2, Checks: 7}
	s := newTestServer(Config{}, Deps{Status: fixedStatus{state}})

	w := serve(s, httptest.NewRequest("GET", "/api/v1/status", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Service != "campusnet" {
		t.Errorf("service = %q", body.Service)
	}
	if body.Daemon.ConsecutiveFailures != 2 || body.Daemon.Checks != 7 {
		t.Errorf("daemon = %+v", body.Daemon)
	}
	if body.Version["version"] == "" {
		t.Error("expected version metadata")
	}
}

func TestHandleStatus_NoDaemon(t *testing.T) {
	s := newTestServer(Config{}, Deps{})
	w := serve(s, httptest.NewRequest("GET", "/api/v1/status", http.NoBody))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHandleMetrics(t *testing.T) {
	m := metrics.New()
	bus := event.NewBus(zap.NewNop())
	m.Subscribe(bus)
	bus.Publish(context.Background(), event.New(event.TopicCheckCompleted, "classifier",
		event.CheckCompleted{Reachable: true, Layer: "icmp"}))

	s := newTestServer(Config{}, Deps{Registry: m.Registry()})
	serve(s, httptest.NewRequest("GET", "/healthz", http.NoBody))
	w := serve(s, httptest.NewRequest("GET", "/metrics", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`campusnet_checks_total{layer="icmp",result="success"} 1`,
		`campusnet_http_requests_total{method="GET",path="/healthz",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_SharedRegistryTwice(t *testing.T) {
	m := metrics.New()
	newTestServer(Config{}, Deps{Registry: m.Registry()})
	// A second server on the same registry reuses the HTTP collectors.
	newTestServer(Config{}, Deps{Registry: m.Registry()})
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(Config{}, Deps{})
	w := serve(s, httptest.NewRequest("GET", "/nope", http.NoBody))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var p Problem
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != ProblemTypeNotFound || p.Instance != "/nope" {
		t.Errorf("problem = %+v", p)
	}
}

func TestTokenAuth(t *testing.T) {
	s := newTestServer(Config{Token: "s3cret"}, Deps{Status: fixedStatus{}})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "missing token", path: "/api/v1/status", want: http.StatusUnauthorized},
		{name: "wrong token", path: "/api/v1/status", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "header token", path: "/api/v1/status", header: "Bearer s3cret", want: http.StatusOK},
		{name: "query token", path: "/api/v1/status?token=s3cret", want: http.StatusOK},
		{name: "healthz open", path: "/healthz", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(s, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestEventsStream_ThroughMiddleware(t *testing.T) {
	logger := zap.NewNop()
	bus := event.NewBus(logger)
	hub := ws.NewHub(logger)
	hub.Subscribe(bus)

	s := newTestServer(Config{Token: "tok"}, Deps{Events: ws.NewHandler(hub, logger)})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?token=tok"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(ctx, event.New(event.TopicLoginExhausted, "retry", event.LoginFinished{Username: "u", Attempts: 5}))

	var got event.Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Topic != event.TopicLoginExhausted {
		t.Errorf("topic = %q", got.Topic)
	}
}

func TestEventsStream_RequiresToken(t *testing.T) {
	s := newTestServer(Config{Token: "tok"}, Deps{Events: ws.NewHandler(ws.NewHub(zap.NewNop()), zap.NewNop())})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/events", nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %v", resp)
	}
}

func testCreds() portal.Credentials {
	return portal.Credentials{Username: "u", Password: "p", LoginURL: "http://portal/login"}
}
