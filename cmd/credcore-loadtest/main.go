package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/credcore"
)

const loadtestPassword = "loadtest-password-1"

func main() {
	var (
		identities  = flag.Int("identities", 200, "number of credentials to register")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "operations per verify/login/validate phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "credload", "credential key prefix")
		argonMemory = flag.Uint("argon-memory", 8*1024, "argon2id memory in KB")
		argonTime   = flag.Uint("argon-time", 1, "argon2id iterations")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	client, cleanup, err := redisClient(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := credcore.DefaultConfig()
	cfg.JWT.Secret = "loadtest-jwt-secret-0123456789abcdef"
	cfg.Password.Memory = uint32(*argonMemory)
	cfg.Password.Time = uint32(*argonTime)
	cfg.Password.Parallelism = 1

	engine, err := credcore.New().
		WithConfig(cfg).
		WithStore(credcore.NewRedisStore(client, *prefix)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	names := make([]string, *identities)
	for i := range names {
		names[i] = fmt.Sprintf("user-%d-%d@loadtest.local", time.Now().UnixNano(), i)
	}

	registerStats := runPhase(len(names), *concurrency, func(_ *rand.Rand, i int) error {
		return engine.Register(ctx, names[i], loadtestPassword, credcore.SchemeHashed)
	})

	var (
		tokens   = make([]string, len(names))
		tokensMu sync.Mutex
	)
	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		idx := r.Intn(len(names))
		res, err := engine.Login(ctx, names[idx], loadtestPassword)
		if err != nil {
			return err
		}
		tokensMu.Lock()
		tokens[idx] = res.Token
		tokensMu.Unlock()
		return nil
	})

	verifyStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		return engine.Verify(ctx, names[r.Intn(len(names))], loadtestPassword)
	})

	issued := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok != "" {
			issued = append(issued, tok)
		}
	}
	validateStats := phaseStats{}
	if len(issued) > 0 {
		validateStats = runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
			_, err := engine.ValidateToken(ctx, issued[r.Intn(len(issued))])
			return err
		})
	}

	fmt.Println("---- results ----")
	printStats("register", registerStats)
	printStats("login", loginStats)
	printStats("verify", verifyStats)
	printStats("validate", validateStats)

	report := engine.SecurityReport()
	for _, w := range report.Warnings {
		fmt.Printf("security warning: %s\n", w)
	}
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

// runPhase spreads ops calls of fn over concurrency workers and records the
// latency of each call.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
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
				err := fn(r, i)
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
