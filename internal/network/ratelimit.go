package network

import (
	"net/netip"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает входящие датаграммы по адресу отправителя.
// Используется только сетевой горутиной.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[netip.AddrPort]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter perSecond датаграмм в секунду со всплеском burst.
// perSecond <= 0 отключает ограничение.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		idle:     time.Minute,
		limiters: make(map[netip.AddrPort]*limiterEntry),
	}
}

// Allow расходует один токен адреса
func (r *RateLimiter) Allow(addr netip.AddrPort, now time.Time) bool {
	e, ok := r.limiters[addr]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[addr] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Cleanup удаляет лимитеры адресов, молчащих дольше минуты
func (r *RateLimiter) Cleanup(now time.Time) {
	for addr, e := range r.limiters {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.limiters, addr)
		}
	}
}

func (r *RateLimiter) Len() int { return len(r.limiters) }

// Forget сбрасывает лимитер адреса
func (r *RateLimiter) Forget(addr netip.AddrPort) {
	delete(r.limiters, addr)
}
