package goMFA

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/otp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testEpoch is a fixed instant whose TOTP step (30s) is 56666666.
var testEpoch = time.Unix(1700000000, 0).UTC()

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{now: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TOTP.QRCodeSize = 0
	return cfg
}

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

type testEngine struct {
	*Engine
	clock *testClock
	store Store
}

// buildTestEngine builds an Engine on a MemoryStore with a fixed clock at
// testEpoch. configure may add builder options.
func buildTestEngine(t *testing.T, cfg Config, configure ...func(*Builder)) *testEngine {
	t.Helper()

	clock := newTestClock(testEpoch)
	store := NewMemoryStore()
	b := New().
		WithConfig(cfg).
		WithStore(store).
		WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, clock: clock, store: engine.store}
}

// buildRedisTestEngine builds an Engine on a RedisStore backed by miniredis.
func buildRedisTestEngine(t *testing.T, cfg Config, configure ...func(*Builder)) (*testEngine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	fns := append([]func(*Builder){func(b *Builder) { b.WithStore(nil).WithRedis(rdb) }}, configure...)
	return buildTestEngine(t, cfg, fns...), mr
}

func totpCodeAt(t *testing.T, encodedSecret string, counter uint64) string {
	t.Helper()

	secret, err := otp.DecodeSecret(encodedSecret)
	if err != nil {
		t.Fatalf("DecodeSecret failed: %v", err)
	}
	code, err := otp.GenerateWithAlgorithm(secret, counter, otp.DefaultDigits, otp.AlgorithmSHA1)
	if err != nil {
		t.Fatalf("GenerateWithAlgorithm failed: %v", err)
	}
	return code
}

func counterAt(at time.Time) uint64 {
	return otp.CounterFromTime(uint64(at.Unix()), otp.DefaultPeriod)
}

// enrollTOTP sets up and enables a TOTP method for userID one minute before
// testEpoch and leaves the clock at testEpoch.
func enrollTOTP(t *testing.T, e *testEngine, userID string) *SetupResult {
	t.Helper()
	ctx := context.Background()

	e.clock.Set(testEpoch.Add(-time.Minute))
	res, err := e.SetupMethod(ctx, userID, MethodTOTP, "")
	if err != nil {
		t.Fatalf("SetupMethod failed: %v", err)
	}
	code := totpCodeAt(t, res.Secret, counterAt(e.clock.Now()))
	if err := e.Enable(ctx, userID, res.MethodID, code); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	e.clock.Set(testEpoch)
	return res
}

func nextAuditEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()

	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

// waitAuditEvent drains sink until an event of eventType arrives.
func waitAuditEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	for {
		ev := nextAuditEvent(t, sink)
		if ev.EventType == eventType {
			return ev
		}
	}
}

func auditedConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = false
	return cfg
}
