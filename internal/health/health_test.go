package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	mu  sync.Mutex
	err error
}

func (p *stubPinger) HealthPing(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *stubPinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestPingChecker_FollowsProbe(t *testing.T) {
	p := &stubPinger{}
	c := NewPingChecker("store", p, 50*time.Millisecond, zerolog.Nop())
	assert.False(t, c.Healthy(), "unhealthy before the first probe")

	require.NoError(t, c.Check(context.Background()))
	assert.True(t, c.Healthy())

	p.set(errors.New("connection refused"))
	assert.Error(t, c.Check(context.Background()))
	assert.False(t, c.Healthy())
}

func TestService_AggregatesComponents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := &stubPinger{}, &stubPinger{}
	ca := NewPingChecker("a", a, 0, zerolog.Nop())
	cb := NewPingChecker("b", b, 0, zerolog.Nop())
	go ca.Start(ctx, 5*time.Millisecond)
	go cb.Start(ctx, 5*time.Millisecond)
	svc := NewService(zerolog.Nop(), ca, cb)
	go svc.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, svc.Healthy, time.Second, 5*time.Millisecond)

	b.set(errors.New("down"))
	require.Eventually(t, func() bool { return !svc.Healthy() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, svc.Components())

	b.set(nil)
	require.Eventually(t, svc.Healthy, time.Second, 5*time.Millisecond)
}

func TestService_WaitHealthy(t *testing.T) {
	p := &stubPinger{err: errors.New("starting")}
	c := NewPingChecker("store", p, 0, zerolog.Nop())
	svc := NewService(zerolog.Nop(), c)

	err := svc.WaitHealthy(context.Background(), 50*time.Millisecond)
	assert.ErrorContains(t, err, "not healthy")

	p.set(nil)
	require.NoError(t, c.Check(context.Background()))
	assert.NoError(t, svc.WaitHealthy(context.Background(), time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c2 := NewPingChecker("x", &stubPinger{err: errors.New("x")}, 0, zerolog.Nop())
	assert.ErrorIs(t, NewService(zerolog.Nop(), c2).WaitHealthy(ctx, time.Second), context.Canceled)
}
