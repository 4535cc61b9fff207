package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/paul-bouzian/saycal/internal/health"
)

type alwaysUp struct{}

func (alwaysUp) HealthPing(context.Context) error { return nil }

// NewHealthChecker probes st when it implements health.Pinger; any other
// store is reported up once checked.
func NewHealthChecker(st Store, timeout time.Duration, log zerolog.Logger) *health.PingChecker {
	p, ok := st.(health.Pinger)
	if !ok {
		p = alwaysUp{}
	}
	return health.NewPingChecker("store", p, timeout, log)
}
