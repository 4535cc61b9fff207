// Package health caches dependency liveness for /api/health and gates
// startup until the dependencies answer.
package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Pinger is implemented by dependencies that can be probed. HealthPing
// returns nil when the dependency is usable.
type Pinger interface {
	HealthPing(ctx context.Context) error
}

// Checker reports the cached state of one dependency.
type Checker interface {
	Name() string
	Healthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// PingChecker probes one Pinger on an interval. It reports unhealthy until
// the first successful probe.
type PingChecker struct {
	name    string
	target  Pinger
	timeout time.Duration
	log     zerolog.Logger
	up      atomic.Bool
}

func NewPingChecker(name string, target Pinger, timeout time.Duration, log zerolog.Logger) *PingChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PingChecker{name: name, target: target, timeout: timeout, log: log}
}

func (c *PingChecker) Name() string  { return c.name }
func (c *PingChecker) Healthy() bool { return c.up.Load() }

// Check runs one probe, updates the cached state and returns the probe error.
func (c *PingChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.target.HealthPing(ctx)
	was := c.up.Swap(err == nil)
	switch {
	case err != nil && was:
		c.log.Error().Stack().Err(err).Str("checker", c.name).Msg("dependency DOWN")
	case err != nil:
		c.log.Debug().Err(err).Str("checker", c.name).Msg("dependency still down")
	case !was:
		c.log.Info().Str("checker", c.name).Msg("dependency UP")
	}
	return err
}

func (c *PingChecker) Start(ctx context.Context, interval time.Duration) {
	every(ctx, interval, func() { _ = c.Check(ctx) })
}

// Service is healthy when every dependency is.
type Service struct {
	deps []Checker
	log  zerolog.Logger
	up   atomic.Bool
}

func NewService(log zerolog.Logger, deps ...Checker) *Service {
	return &Service{deps: deps, log: log}
}

func (s *Service) Healthy() bool { return s.up.Load() }

// Components reports the cached state of each dependency by name.
func (s *Service) Components() map[string]bool {
	out := make(map[string]bool, len(s.deps))
	for _, d := range s.deps {
		out[d.Name()] = d.Healthy()
	}
	return out
}

// Evaluate recomputes the service state from the cached dependency states.
func (s *Service) Evaluate() bool {
	all := true
	for _, d := range s.deps {
		all = all && d.Healthy()
	}
	if was := s.up.Swap(all); was != all {
		if all {
			s.log.Info().Msg("service health: UP")
		} else {
			s.log.Error().Stack().Interface("components", s.Components()).Msg("service health: DOWN")
		}
	}
	return all
}

func (s *Service) Start(ctx context.Context, interval time.Duration) {
	every(ctx, interval, func() { s.Evaluate() })
}

// WaitHealthy polls until the service is healthy, ctx ends or timeout passes.
func (s *Service) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		if s.Evaluate() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("dependencies not healthy within %s: %v", timeout, s.Components())
		case <-tick.C:
		}
	}
}

// every runs fn now and then on each tick until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
