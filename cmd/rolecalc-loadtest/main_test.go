package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunSmallLoad(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{users: 2, concurrency: 2, ops: 10, prefix: "load-test", metrics: true}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "calculate: ops=10 failures=0")
	require.Contains(t, out.String(), "restore: ops=10 failures=0")
	require.Contains(t, out.String(), "rolecalc_calculation_success_total 10")
}

func TestRunRejectsBadOptions(t *testing.T) {
	require.Error(t, run(context.Background(), options{users: 0, concurrency: 1, ops: 1}, &bytes.Buffer{}))
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, time.Duration(1), percentile(samples, 0))
	require.Equal(t, time.Duration(5), percentile(samples, 50))
	require.Equal(t, time.Duration(10), percentile(samples, 100))
	require.Zero(t, percentile(nil, 50))
}
