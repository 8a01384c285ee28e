package httpapi

import "time"

// Options controls HTTP API runtime behavior.
type Options struct {
	// MaxBodyBytes caps request bodies of the POST endpoints.
	MaxBodyBytes int64

	// TokenTTL is how long a token issued by POST /api/clash stays redeemable.
	TokenTTL time.Duration
	// TokenSweepInterval is the minimum spacing of full cache sweeps.
	TokenSweepInterval time.Duration

	// RateLimitRPS limits token creation per client IP. 0 disables limiting.
	RateLimitRPS     float64
	RateLimitBurst   int
	RateLimitIdleTTL time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.TokenTTL <= 0 {
		o.TokenTTL = 10 * time.Minute
	}
	if o.TokenSweepInterval <= 0 {
		o.TokenSweepInterval = time.Minute
	}
	if o.RateLimitRPS > 0 && o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 1
	}
	if o.RateLimitIdleTTL <= 0 {
		o.RateLimitIdleTTL = 10 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
