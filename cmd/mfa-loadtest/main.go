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

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/otp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type enrolled struct {
	userID string
	secret []byte
	backup []string
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of users to enroll with TOTP")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations for the mismatch and backup phases")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "mfa", "store key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	// The engine clock is stepped between phases so each user's TOTP
	// counter is fresh exactly once.
	var clockUnix atomic.Int64
	clockUnix.Store(time.Now().Unix())
	now := func() time.Time { return time.Unix(clockUnix.Load(), 0) }

	cfg := goMFA.DefaultConfig()
	cfg.TOTP.QRCodeSize = 0

	engine, err := goMFA.New().WithConfig(cfg).WithStore(goMFA.NewRedisStore(client, *prefix)).WithClock(now).WithLatencyHistograms(true).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("enrolling %d users...\n", *users)
	startSeed := time.Now()
	states := make([]enrolled, *users)
	for i := range states {
		st, err := enroll(ctx, engine, fmt.Sprintf("user-%d", i), now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "enroll failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = st
	}
	fmt.Printf("enrolled in %s\n", time.Since(startSeed).Round(time.Millisecond))

	clockUnix.Add(int64(otp.DefaultPeriod))
	totpStats := runPhase(*users, *concurrency, func(i int, _ *rand.Rand) error {
		st := states[i]
		code, err := otp.Generate(st.secret, otp.CounterFromTime(uint64(now().Unix()), otp.DefaultPeriod), otp.DefaultDigits)
		if err != nil {
			return err
		}
		return engine.Verify(ctx, st.userID, goMFA.MethodTOTP, code)
	})

	mismatchStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		err := engine.Verify(ctx, st.userID, goMFA.MethodTOTP, "000000")
		if err == nil {
			return fmt.Errorf("wrong code accepted for %s", st.userID)
		}
		return nil
	})

	// Random picks collide, so rejected consumptions here are expected
	// reuse and show up as failures.
	backupStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		return engine.VerifyBackupCode(ctx, st.userID, st.backup[r.Intn(len(st.backup))])
	})

	fmt.Println("---- results ----")
	printStats("totp-verify", totpStats)
	printStats("totp-mismatch", mismatchStats)
	printStats("backup-consume", backupStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: verify_success=%d verify_failure=%d backup_used=%d backup_reuse=%d replay=%d\n",
		snap.Counters[goMFA.MetricVerifySuccess],
		snap.Counters[goMFA.MetricVerifyFailure],
		snap.Counters[goMFA.MetricBackupCodeUsed],
		snap.Counters[goMFA.MetricBackupCodeReuse],
		snap.Counters[goMFA.MetricTOTPReplay],
	)
}

func enroll(ctx context.Context, engine *goMFA.Engine, userID string, at time.Time) (enrolled, error) {
	res, err := engine.SetupMethod(ctx, userID, goMFA.MethodTOTP, "")
	if err != nil {
		return enrolled{}, fmt.Errorf("setup %s: %w", userID, err)
	}
	secret, err := otp.DecodeSecret(res.Secret)
	if err != nil {
		return enrolled{}, err
	}
	code, err := otp.Generate(secret, otp.CounterFromTime(uint64(at.Unix()), otp.DefaultPeriod), otp.DefaultDigits)
	if err != nil {
		return enrolled{}, err
	}
	if err := engine.Enable(ctx, userID, res.MethodID, code); err != nil {
		return enrolled{}, fmt.Errorf("enable %s: %w", userID, err)
	}
	return enrolled{userID: userID, secret: secret, backup: res.BackupCodes}, nil
}

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
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
				err := op(i, r)
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
	switch {
	case p <= 0:
		return samples[0]
	case p >= 100:
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
