// Package tokencache keeps rendered-config payloads behind short-lived random
// tokens so clients can fetch a config with a short URL.
package tokencache

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTTL           = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration

	// Now and NewToken are overridable for tests.
	Now      func() time.Time
	NewToken func() (string, error)
}

type entry struct {
	payload   string
	expiresAt time.Time
}

// Cache is safe for concurrent use. Expired entries are never returned; they
// are removed lazily by Get and in bulk by Sweep.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]entry
	lastSweep time.Time

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	newToken      func() (string, error)
}

func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewToken == nil {
		opts.NewToken = randomToken
	}
	return &Cache{
		entries:       make(map[string]entry),
		lastSweep:     opts.Now(),
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
		newToken:      opts.NewToken,
	}
}

func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Put stores payload under a fresh token valid for the configured TTL.
func (c *Cache) Put(payload string) (string, error) {
	token, err := c.newToken()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("tokencache: empty token")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= c.sweepInterval {
		c.sweepLocked(now)
	}
	if _, exists := c.entries[token]; exists {
		return "", errors.New("tokencache: token collision")
	}
	c.entries[token] = entry{payload: payload, expiresAt: now.Add(c.ttl)}
	return token, nil
}

// Get returns the payload for a live token. An expired token and a token that
// was never issued are indistinguishable to the caller.
func (c *Cache) Get(token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[token]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, token)
		return "", false
	}
	return e.payload, true
}

// Sweep removes every expired entry.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(c.now())
}

func (c *Cache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.lastSweep = now
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
