package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterCap bounds the per-phone limiter map so an attacker cycling phone
// numbers cannot grow it without bound.
const limiterCap = 5000

// phoneLimiters paces webhook ingestion per phone number.
type phoneLimiters struct {
	mu       sync.Mutex
	rpm      int
	limiters map[string]*rate.Limiter
}

func newPhoneLimiters(rpm int) *phoneLimiters {
	return &phoneLimiters{rpm: rpm, limiters: make(map[string]*rate.Limiter)}
}

// allow reports whether one more message from phone fits the configured
// rate. A non-positive rpm disables limiting.
func (p *phoneLimiters) allow(phone string) bool {
	if p.rpm <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[phone]
	if !ok {
		if len(p.limiters) >= limiterCap {
			p.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Limit(p.rpm)/60.0, p.rpm/4+1)
		p.limiters[phone] = lim
	}
	return lim.Allow()
}
