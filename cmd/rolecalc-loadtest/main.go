// Command rolecalc-loadtest drives many signed-in engines against an
// in-process sandbox and reports latency percentiles for the calculate and
// cold restore paths.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/rolecalc"
	"github.com/MrEthical07/rolecalc/metrics/export/prometheus"
	"github.com/MrEthical07/rolecalc/password"
	"github.com/MrEthical07/rolecalc/permission"
	"github.com/MrEthical07/rolecalc/sandbox"
)

const seedPassword = "correct-horse"

type options struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
	metrics     bool
}

func main() {
	var o options
	flag.IntVar(&o.users, "users", 32, "number of signed-in principals")
	flag.IntVar(&o.concurrency, "concurrency", 64, "number of concurrent workers")
	flag.IntVar(&o.ops, "ops", 20000, "operations per phase (calculate + restore)")
	flag.StringVar(&o.redisAddr, "redis-addr", "", "redis address for sessions; if empty, REDIS_ADDR env or miniredis is used")
	flag.StringVar(&o.prefix, "prefix", "rolecalc-load", "session key prefix")
	flag.BoolVar(&o.metrics, "metrics", false, "print engine metrics in Prometheus format")
	flag.Parse()

	if o.redisAddr == "" {
		o.redisAddr = os.Getenv("REDIS_ADDR")
	}
	if err := run(context.Background(), o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, out io.Writer) error {
	if o.users <= 0 || o.concurrency <= 0 || o.ops <= 0 {
		return errors.New("users, concurrency, and ops must be > 0")
	}

	client, cleanup, err := openRedis(o.redisAddr, out)
	if err != nil {
		return err
	}
	defer cleanup()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	sb, err := sandbox.New(sandbox.Config{
		ClientID: "rolecalc-load",
		Password: password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		Logger:   quiet,
	})
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: sb.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()
	base := "http://" + ln.Addr().String()

	newEngine := func(i int) (*rolecalc.Engine, error) {
		cfg := rolecalc.DefaultConfig()
		cfg.Provider.Endpoint = base + "/idp"
		cfg.Provider.ClientID = "rolecalc-load"
		cfg.API.Endpoint = base + "/api/"
		cfg.Session.Backend = rolecalc.SessionBackendRedis
		cfg.Session.RedisPrefix = o.prefix
		cfg.Session.Key = fmt.Sprintf("user-%d", i)
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
		return rolecalc.New().WithConfig(cfg).WithRedis(client).WithLogger(quiet).Build()
	}

	fmt.Fprintf(out, "signing in %d principals...\n", o.users)
	startSeed := time.Now()
	engines := make([]*rolecalc.Engine, o.users)
	for i := range engines {
		name := fmt.Sprintf("load%d", i)
		if _, err := sb.AddUser(sandbox.UserSpec{Username: name, Password: seedPassword, Groups: []string{permission.RoleAddSubtract}}); err != nil {
			return err
		}
		e, err := newEngine(i)
		if err != nil {
			return err
		}
		defer e.Close()
		if _, err := e.SignIn(ctx, name, seedPassword); err != nil {
			return fmt.Errorf("sign in %s: %w", name, err)
		}
		engines[i] = e
	}
	fmt.Fprintf(out, "signed in in %s\n", time.Since(startSeed).Round(time.Millisecond))

	calc := runPhase(o.ops, o.concurrency, func(r *rand.Rand, _ int) error {
		e := engines[r.Intn(len(engines))]
		_, err := e.Calculate(ctx, r.Float64()*100, r.Float64()*100, rolecalc.OpAdd)
		return err
	})
	restore := runPhase(o.ops, o.concurrency, func(r *rand.Rand, _ int) error {
		e, err := newEngine(r.Intn(len(engines)))
		if err != nil {
			return err
		}
		defer e.Close()
		_, ok, err := e.Restore(ctx)
		if err == nil && !ok {
			err = errors.New("nothing restored")
		}
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "calculate", calc)
	printStats(out, "restore", restore)
	if o.metrics {
		fmt.Fprint(out, prometheus.NewExporterFromSource(pool(engines)).Render())
	}
	return nil
}

func openRedis(addr string, out io.Writer) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Fprintf(out, "using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

// pool sums the metrics of every engine.
type pool []*rolecalc.Engine

func (p pool) MetricsSnapshot() rolecalc.MetricsSnapshot {
	out := rolecalc.MetricsSnapshot{
		Counters:   map[rolecalc.MetricID]uint64{},
		Histograms: map[rolecalc.MetricID][]uint64{},
	}
	for _, e := range p {
		snap := e.MetricsSnapshot()
		for id, v := range snap.Counters {
			out.Counters[id] += v
		}
		for id, buckets := range snap.Histograms {
			sum := out.Histograms[id]
			if sum == nil {
				sum = make([]uint64, len(buckets))
			}
			for i, v := range buckets {
				sum[i] += v
			}
			out.Histograms[id] = sum
		}
	}
	return out
}

func (p pool) AuditDropped() uint64 {
	var n uint64
	for _, e := range p {
		n += e.AuditDropped()
	}
	return n
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
