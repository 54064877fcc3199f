package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedLimiter(cfg *Config, now time.Time) *Limiter {
	l := NewLimiter(cfg)
	l.now = func() time.Time { return now }
	return l
}

func TestLimiter_DefaultLimit(t *testing.T) {
	now := time.Now()
	l := fixedLimiter(&Config{Enabled: true, DefaultLimit: 3, DefaultWindow: time.Minute}, now)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("1.2.3.4", "/data/latest", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 2-i, info.Remaining)
	}

	allowed, info := l.Allow("1.2.3.4", "/data/latest", "GET")
	assert.False(t, allowed)
	assert.InDelta(t, 20, info.RetryAfter.Seconds(), 0.01)
	assert.True(t, info.ResetTime.After(now))
}

func TestLimiter_Refill(t *testing.T) {
	now := time.Now()
	l := fixedLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Second}, now)
	defer l.Stop()

	allowed, _ := l.Allow("c", "/x", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("c", "/x", "GET")
	require.False(t, allowed)

	l.now = func() time.Time { return now.Add(time.Second) }
	allowed, _ = l.Allow("c", "/x", "GET")
	assert.True(t, allowed)
}

func TestLimiter_ClientsAndEndpointsIndependent(t *testing.T) {
	l := fixedLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute}, time.Now())
	defer l.Stop()

	ok, _ := l.Allow("a", "/x", "GET")
	assert.True(t, ok)
	ok, _ = l.Allow("b", "/x", "GET")
	assert.True(t, ok)
	ok, _ = l.Allow("a", "/y", "GET")
	assert.True(t, ok)
	ok, _ = l.Allow("a", "/x", "POST")
	assert.True(t, ok)
	ok, _ = l.Allow("a", "/x", "GET")
	assert.False(t, ok)
}

func TestLimiter_EndpointConfig(t *testing.T) {
	l := fixedLimiter(&Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: []EndpointConfig{{Path: "/sync", Method: "POST", Limit: 6, Window: time.Hour, Burst: 1}},
	}, time.Now())
	defer l.Stop()

	ok, info := l.Allow("a", "/sync", "POST")
	assert.True(t, ok)
	assert.Equal(t, 6, info.Limit)
	ok, info = l.Allow("a", "/sync", "POST")
	assert.False(t, ok)
	assert.InDelta(t, 600, info.RetryAfter.Seconds(), 0.01)
}

func TestLimiter_Lists(t *testing.T) {
	l := fixedLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"good": true},
		Blacklist:     map[string]bool{"bad": true},
	}, time.Now())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("good", "/x", "GET")
		assert.True(t, ok)
	}
	ok, _ := l.Allow("bad", "/x", "GET")
	assert.False(t, ok)
}

func TestLimiter_DisabledAndHealth(t *testing.T) {
	off := NewLimiter(&Config{Enabled: false})
	defer off.Stop()
	ok, _ := off.Allow("a", "/x", "GET")
	assert.True(t, ok)

	l := fixedLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute}, time.Now())
	defer l.Stop()
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("a", "/health", "GET")
		assert.True(t, ok)
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	now := time.Now()
	l := fixedLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute}, now)
	defer l.Stop()

	l.Allow("a", "/x", "GET")
	l.evictIdle(now.Add(time.Minute))
	assert.Empty(t, l.buckets)

	ok, _ := l.Allow("a", "/x", "GET")
	assert.True(t, ok, "a fresh bucket starts full")
}

func TestLimiter_Concurrent(t *testing.T) {
	l := fixedLimiter(&Config{Enabled: true, DefaultLimit: 50, DefaultWindow: time.Hour}, time.Now())
	defer l.Stop()

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/x", "GET"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/users/login", Method: "POST", Limit: 1},
		{Path: "/data/", Method: "GET", Limit: 2},
	}
	assert.Equal(t, 1, MatchEndpoint("/users/login", "POST", configs).Limit)
	assert.Equal(t, 2, MatchEndpoint("/data/latest", "GET", configs).Limit)
	assert.Nil(t, MatchEndpoint("/users/login", "GET", configs))
	assert.Equal(t, 0, MatchEndpoint("/health", "GET", configs).Limit)
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_DEFAULT_LIMIT": "42",
		"RATE_LIMIT_WHITELIST":     "10.0.0.1, 10.0.0.2",
	}
	cfg := loadConfig(func(k string) string { return env[k] })
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 42, cfg.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.DefaultWindow)
	assert.True(t, cfg.Whitelist["10.0.0.2"])
	assert.NotEmpty(t, cfg.EndpointConfigs)

	disabled := loadConfig(func(k string) string {
		if k == "RATE_LIMIT_ENABLED" {
			return "false"
		}
		return ""
	})
	assert.False(t, disabled.Enabled)
}
