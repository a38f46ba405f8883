package pluginindex

import (
	"context"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
)

// mempoolExpiry tracks mempool transactions and reports those that stayed
// unconfirmed longer than the configured expiry. A zero expiry disables it.
type mempoolExpiry struct {
	ttl   time.Duration
	cache *ttlcache.Cache[chainhash.Hash, struct{}]

	// eviction callbacks run under the cache lock, so expired txids are queued
	// here and the writer is only signalled
	mu      sync.Mutex
	expired []chainhash.Hash
	notify  chan struct{}
}

func newMempoolExpiry(ttl time.Duration) *mempoolExpiry {
	m := &mempoolExpiry{
		ttl: ttl,
		cache: ttlcache.New[chainhash.Hash, struct{}](
			ttlcache.WithTTL[chainhash.Hash, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[chainhash.Hash, struct{}](),
		),
		notify: make(chan struct{}, 1),
	}

	m.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[chainhash.Hash, struct{}]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}

		m.mu.Lock()
		m.expired = append(m.expired, item.Key())
		m.mu.Unlock()

		select {
		case m.notify <- struct{}{}:
		default:
		}
	})

	return m
}

func (m *mempoolExpiry) enabled() bool {
	return m.ttl > 0
}

// Track schedules txid to expire ttl after since.
func (m *mempoolExpiry) Track(txid chainhash.Hash, since time.Time) {
	if !m.enabled() {
		return
	}

	remaining := m.ttl - time.Since(since)
	if remaining <= 0 {
		// already overdue, expire on the next cleanup
		remaining = time.Nanosecond
	}

	m.cache.Set(txid, struct{}{}, remaining)
	prometheusPluginIndexMempoolTracked.Set(float64(m.cache.Len()))
}

func (m *mempoolExpiry) Untrack(txid chainhash.Hash) {
	if !m.enabled() {
		return
	}

	m.cache.Delete(txid)
	prometheusPluginIndexMempoolTracked.Set(float64(m.cache.Len()))
}

func (m *mempoolExpiry) Tracked(txid chainhash.Hash) bool {
	return m.enabled() && m.cache.Has(txid)
}

// Notify is signalled whenever Drain has txids to return.
func (m *mempoolExpiry) Notify() <-chan struct{} {
	return m.notify
}

// Drain returns and forgets the txids that expired since the last call.
func (m *mempoolExpiry) Drain() []chainhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := m.expired
	m.expired = nil

	return expired
}

// Start runs the expiry loop until Stop is called.
func (m *mempoolExpiry) Start() {
	if m.enabled() {
		go m.cache.Start()
	}
}

func (m *mempoolExpiry) Stop() {
	if m.enabled() {
		m.cache.Stop()
	}
}
