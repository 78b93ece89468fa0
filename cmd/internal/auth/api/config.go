package authapi

import (
	"time"

	"golang.org/x/time/rate"
)

// Cookie names.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// TrustProxy makes client IPs come from X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	MaxBodyBytes int64

	// CookieSecure should only be false for plain-http local development.
	CookieSecure bool
	CookieDomain string

	// LoginRate and LoginBurst define the per-IP token bucket for POST /login/.
	LoginRate  rate.Limit
	LoginBurst int

	// LimiterIdleTTL is how long an idle per-IP bucket is kept before pruning.
	LimiterIdleTTL time.Duration
}

// DefaultConfig returns secure defaults: Secure cookies, 10 login attempts per minute per IP.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   1 << 20,
		CookieSecure:   true,
		LoginRate:      rate.Every(6 * time.Second),
		LoginBurst:     10,
		LimiterIdleTTL: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.LoginRate <= 0 {
		c.LoginRate = d.LoginRate
	}
	if c.LoginBurst <= 0 {
		c.LoginBurst = d.LoginBurst
	}
	if c.LimiterIdleTTL <= 0 {
		c.LimiterIdleTTL = d.LimiterIdleTTL
	}
	return c
}
