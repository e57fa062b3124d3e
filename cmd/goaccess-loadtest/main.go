// Command goaccess-loadtest drives the engine's hot paths against a
// temp SQLite store and miniredis (or a real Redis via -redis-addr) and
// reports latency percentiles per phase.
//
// Phases:
//
//	login    — StartLogin + VerifyCode for the full code flow
//	validate — ValidateToken on previously minted session tokens
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goAccess "github.com/vealkov/goAccess"
	"github.com/vealkov/goAccess/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 10000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	dir, err := os.MkdirTemp("", "goaccess-loadtest")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "loadtest.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "store open: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	cfg := goAccess.DemoConfig()
	// Budgets would throttle the loadtest itself.
	cfg.RateLimit = goAccess.RateLimitConfig{}

	var codeMu sync.Mutex
	codes := map[string]string{}

	engine, err := goAccess.New().
		WithConfig(cfg).
		WithStore(st).
		WithRedis(client).
		WithCodeSender(goAccess.CodeSenderFunc(func(_ context.Context, email, code string) bool {
			codeMu.Lock()
			codes[email] = code
			codeMu.Unlock()
			return true
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := seedAccounts(ctx, st, engine, *accounts)
	fmt.Printf("seeded %d accounts\n", len(emails))

	takeCode := func(email string) string {
		codeMu.Lock()
		defer codeMu.Unlock()
		return codes[email]
	}

	var tokens sync.Map
	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		email := emails[r.Intn(len(emails))]
		start, err := engine.StartLogin(ctx, email, seedPassword, "")
		if err != nil {
			return err
		}
		result, err := engine.VerifyCode(ctx, start.ChallengeID, takeCode(email))
		if err != nil {
			return err
		}
		tokens.Store(email, result.SessionToken)
		return nil
	})

	var sessionTokens []string
	tokens.Range(func(_, v any) bool {
		sessionTokens = append(sessionTokens, v.(string))
		return true
	})
	if len(sessionTokens) == 0 {
		fmt.Fprintln(os.Stderr, "login phase produced no session tokens")
		os.Exit(1)
	}

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.ValidateToken(ctx, sessionTokens[r.Intn(len(sessionTokens))])
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
}

const seedPassword = "loadtest-password"

func seedAccounts(ctx context.Context, st *store.Store, engine *goAccess.Engine, n int) []string {
	emails := make([]string, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		result, err := engine.RequestAccess(ctx, email, seedPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed account: %v\n", err)
			os.Exit(1)
		}
		account, err := st.AccountByID(ctx, result.AccountID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed lookup: %v\n", err)
			os.Exit(1)
		}
		account.IsApproved = true
		if err := st.UpdateAccount(ctx, account); err != nil {
			fmt.Fprintf(os.Stderr, "seed approve: %v\n", err)
			os.Exit(1)
		}
		emails = append(emails, email)
	}
	return emails
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
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
				err := op(r)
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
