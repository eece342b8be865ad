package browser

import (
	"sync"
	"time"
)

// proxyPool rotates a fixed list of upstream proxies, marking ones that
// misbehave as unhealthy for a cooldown period instead of removing them
// permanently (a proxy that fails once may recover).
type proxyPool struct {
	mu        sync.Mutex
	proxies   []string
	unhealthy map[string]time.Time
	next      int
}

const proxyCooldown = 5 * time.Minute

func newProxyPool(proxies []string) *proxyPool {
	return &proxyPool{
		proxies:   proxies,
		unhealthy: make(map[string]time.Time),
	}
}

// acquire returns the next healthy proxy in rotation, or "" if no pool
// is configured (direct connection).
func (p *proxyPool) acquire() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	now := time.Now()
	for i := 0; i < len(p.proxies); i++ {
		idx := (p.next + i) % len(p.proxies)
		candidate := p.proxies[idx]
		if until, bad := p.unhealthy[candidate]; bad && now.Before(until) {
			continue
		}
		p.next = (idx + 1) % len(p.proxies)
		return candidate
	}
	// All proxies currently cooling down; fall back to round-robin anyway.
	idx := p.next % len(p.proxies)
	p.next = (idx + 1) % len(p.proxies)
	return p.proxies[idx]
}

// release is a no-op placeholder for future usage-tracking; proxies are
// not exclusively leased, only rotated.
func (p *proxyPool) release(proxy string) {}

// markUnhealthy takes proxy out of rotation for proxyCooldown.
func (p *proxyPool) markUnhealthy(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unhealthy[proxy] = time.Now().Add(proxyCooldown)
}
