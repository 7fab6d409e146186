package retry

import (
	"math"
	"strings"
	"time"
)

// Strategy maps a 1-based attempt number to the wait before that attempt.
type Strategy interface {
	Delay(attempt int) time.Duration
}

type Fixed struct {
	D time.Duration
}

func (f Fixed) Delay(int) time.Duration { return f.D }

// Exponential returns min(Cap, Base*2^(attempt-1)). Attempts below 1 are treated
// as 1. The cap always applies, so a zero Cap yields no wait.
type Exponential struct {
	Base time.Duration
	Cap  time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if e.Base <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift >= 62 || e.Base > time.Duration(math.MaxInt64>>shift) {
		return e.capOr(time.Duration(math.MaxInt64))
	}
	return e.capOr(e.Base << shift)
}

func (e Exponential) capOr(d time.Duration) time.Duration {
	return max(min(d, e.Cap), 0)
}

type Config struct {
	Strategy   string
	FixedDelay time.Duration
	Base       time.Duration
	Cap        time.Duration
}

// NewStrategy returns Fixed for "fixed" and Exponential for anything else.
func NewStrategy(cfg Config) Strategy {
	if strings.EqualFold(strings.TrimSpace(cfg.Strategy), "fixed") {
		return Fixed{D: cfg.FixedDelay}
	}
	return Exponential{Base: cfg.Base, Cap: cfg.Cap}
}
