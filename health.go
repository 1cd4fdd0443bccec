package adelauth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Health is a point-in-time snapshot of dependency health.
type Health struct {
	Healthy     bool
	Redis       bool
	Postgres    bool
	Breakers    map[string]string
	ActiveUsers int64
	Uptime      time.Duration
}

// HealthCheck describes the healthcheck operation and its observable behavior.
//
// HealthCheck may return an error when input validation, dependency calls, or security checks fail.
// HealthCheck does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Pings travel through the dependency breakers, so a check against an
// open breaker reports unhealthy without touching the backend.
func (e *Engine) HealthCheck(ctx context.Context) Health {
	h := Health{
		Breakers: make(map[string]string),
		Uptime:   e.now().Sub(e.startedAt),
	}

	h.Redis = e.creds.Ping(ctx) == nil
	h.Postgres = e.data.HasPool() && e.data.Ping(ctx) == nil
	for name, state := range e.data.BreakerStates() {
		h.Breakers[name] = state.String()
	}
	if n, err := e.creds.ActiveUserCount(ctx, e.config.Session.PresenceWindow); err == nil {
		h.ActiveUsers = n
	}

	h.Healthy = h.Redis && (h.Postgres || !e.data.HasPool())
	return h
}

// ActiveUsers returns how many users were active within the configured
// presence window.
func (e *Engine) ActiveUsers(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.creds.ActiveUserCount(ctx, e.config.Session.PresenceWindow)
	if err != nil {
		return 0, e.cacheErr(err)
	}
	return n, nil
}

// RegisterMetrics exposes breaker states and the active user count as
// Prometheus gauges. Breaker state values: 0 closed, 1 open, 2 half open.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) error {
	for _, b := range []*struct {
		name  string
		state func() float64
	}{
		{"postgres", func() float64 { return float64(e.data.DBBreaker().State()) }},
		{"redis", func() float64 { return float64(e.data.CacheBreaker().State()) }},
		{"kafka", func() float64 { return float64(e.data.BrokerBreaker().State()) }},
	} {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "adela_auth",
			Name:        "breaker_state",
			Help:        "Circuit breaker state per dependency (0 closed, 1 open, 2 half open).",
			ConstLabels: prometheus.Labels{"dependency": b.name},
		}, b.state)
		if err := reg.Register(gauge); err != nil {
			return err
		}
	}

	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "adela_auth",
		Name:      "active_users",
		Help:      "Users active within the presence window.",
	}, func() float64 {
		n, err := e.creds.ActiveUserCount(context.Background(), e.config.Session.PresenceWindow)
		if err != nil {
			return 0
		}
		return float64(n)
	})
	return reg.Register(active)
}
