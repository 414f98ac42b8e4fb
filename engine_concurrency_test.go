package rolecalc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/rolecalc/permission"
)

// rolesGate counts role-list requests and holds the first one until released.
type rolesGate struct {
	base    HTTPDoer
	armed   atomic.Bool
	calls   atomic.Int64
	entered chan struct{}
	release chan struct{}
}

func (d *rolesGate) Do(req *http.Request) (*http.Response, error) {
	if d.armed.Load() && strings.HasSuffix(req.URL.Path, "/admin/roles") && req.Method == http.MethodGet {
		if d.calls.Add(1) == 1 {
			d.entered <- struct{}{}
			<-d.release
		}
	}
	return d.base.Do(req)
}

func TestRefreshRolesConcurrentCallsShareRequest(t *testing.T) {
	gate := &rolesGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := newHarness(t, harnessOptions{
		doer: func(base HTTPDoer) HTTPDoer {
			gate.base = base
			return gate
		},
	})
	h.signIn("alice", permission.RoleAddSubtract)
	gate.armed.Store(true)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan []RoleDefinition, n)
	errs := make(chan error, n)
	refresh := func() {
		defer wg.Done()
		roles, err := h.engine.RefreshRoles(context.Background())
		errs <- err
		results <- roles
	}

	wg.Add(1)
	go refresh()
	<-gate.entered
	for i := 1; i < n; i++ {
		wg.Add(1)
		go refresh()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()
	close(errs)
	close(results)

	for err := range errs {
		require.NoError(t, err)
	}
	for roles := range results {
		require.Len(t, roles, 3)
	}
	require.EqualValues(t, 1, gate.calls.Load())
}

func TestRefreshRolesSurvivesFirstCallerCancel(t *testing.T) {
	gate := &rolesGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := newHarness(t, harnessOptions{
		doer: func(base HTTPDoer) HTTPDoer {
			gate.base = base
			return gate
		},
	})
	h.signIn("alice", permission.RoleAddSubtract)
	gate.armed.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.engine.RefreshRoles(ctx)
		firstErr <- err
	}()
	<-gate.entered
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		roles []RoleDefinition
		err   error
	}
	second := make(chan result, 1)
	go func() {
		roles, err := h.engine.RefreshRoles(context.Background())
		second <- result{roles, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.roles, 3)
	require.EqualValues(t, 1, gate.calls.Load())
	counters := h.engine.MetricsSnapshot().Counters
	require.Zero(t, counters[MetricRoleCatalogRefreshFailure])
	require.Zero(t, counters[MetricNetworkFailure])
}

func TestCalculateAndLogoutRace(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.signIn("alice", permission.RoleAddSubtract)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.Calculate(ctx, float64(i), 1, OpAdd)
			if err != nil {
				assert.True(t, errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrSessionExpired), "unexpected error: %v", err)
			}
		}(i)
	}
	require.NoError(t, h.engine.Logout(ctx))
	wg.Wait()

	_, ok := h.engine.Principal()
	require.False(t, ok)
	require.False(t, h.engine.CanPerform(OpAdd))
}
