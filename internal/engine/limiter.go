package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// hostLimiter caps in-flight requests per host and spaces their starts.
type hostLimiter struct {
	perHost int64
	delay   time.Duration

	mu    sync.Mutex
	gates map[string]*hostGate
}

type hostGate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

func newHostLimiter(perHost int, delay time.Duration) *hostLimiter {
	if perHost < 1 {
		perHost = 1
	}
	return &hostLimiter{
		perHost: int64(perHost),
		delay:   delay,
		gates:   make(map[string]*hostGate),
	}
}

func (l *hostLimiter) gate(host string) *hostGate {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.gates[host]
	if !ok {
		g = &hostGate{sem: semaphore.NewWeighted(l.perHost)}
		if l.delay > 0 {
			g.limiter = rate.NewLimiter(rate.Every(l.delay), 1)
		}
		l.gates[host] = g
	}
	return g
}

// Acquire blocks until host has a free slot and its delay has elapsed. The
// returned func frees the slot.
func (l *hostLimiter) Acquire(ctx context.Context, host string) (func(), error) {
	g := l.gate(strings.ToLower(host))
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.sem.Release(1)
			return nil, err
		}
	}
	return func() { g.sem.Release(1) }, nil
}

// allowedHost reports whether host is one of domains or a subdomain of one.
func allowedHost(host string, domains []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
