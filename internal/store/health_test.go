package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type pingStore struct {
	Store
	err error
}

func (p *pingStore) HealthPing(context.Context) error { return p.err }

type plainStore struct{ Store }

func TestNewHealthChecker_FollowsPing(t *testing.T) {
	ps := &pingStore{}
	hc := NewHealthChecker(ps, 50*time.Millisecond, zerolog.Nop())
	assert.Equal(t, "store", hc.Name())
	assert.False(t, hc.Healthy(), "checker must start unhealthy")

	assert.NoError(t, hc.Check(context.Background()))
	assert.True(t, hc.Healthy())

	ps.err = errors.New("connection refused")
	assert.Error(t, hc.Check(context.Background()))
	assert.False(t, hc.Healthy())
}

func TestNewHealthChecker_UnpingableStoreIsUp(t *testing.T) {
	hc := NewHealthChecker(plainStore{}, 0, zerolog.Nop())
	assert.NoError(t, hc.Check(context.Background()))
	assert.True(t, hc.Healthy())
}
