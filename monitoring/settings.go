package monitoring

import (
	"errors"
	"sync"
)

// Thresholds are the warn and critical levels for one signal. Zero
// disables the level.
type Thresholds struct {
	Warn float64
	Crit float64
}

// Settings holds the runtime-mutable detection thresholds. Updates take
// effect on the next detector sweep without restart.
type Settings struct {
	mu            sync.RWMutex
	errorRate     Thresholds
	requestSpike  Thresholds
	loginFailures Thresholds
}

// ErrInvalidThreshold is returned for negative or inverted thresholds.
var ErrInvalidThreshold = errors.New("monitoring: invalid threshold")

// DefaultSettings mirrors the shipped detection defaults.
func DefaultSettings() *Settings {
	return &Settings{
		errorRate:     Thresholds{Warn: 0.05, Crit: 0.20},
		requestSpike:  Thresholds{Warn: 1000, Crit: 5000},
		loginFailures: Thresholds{Warn: 10, Crit: 50},
	}
}

func validate(t Thresholds) error {
	if t.Warn < 0 || t.Crit < 0 {
		return ErrInvalidThreshold
	}
	if t.Warn > 0 && t.Crit > 0 && t.Crit < t.Warn {
		return ErrInvalidThreshold
	}
	return nil
}

// ErrorRate returns the 5xx-ratio thresholds.
func (s *Settings) ErrorRate() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorRate
}

// SetErrorRate updates the 5xx-ratio thresholds.
func (s *Settings) SetErrorRate(t Thresholds) error {
	if err := validate(t); err != nil {
		return err
	}
	s.mu.Lock()
	s.errorRate = t
	s.mu.Unlock()
	return nil
}

// RequestSpike returns the request-delta thresholds.
func (s *Settings) RequestSpike() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestSpike
}

// SetRequestSpike updates the request-delta thresholds.
func (s *Settings) SetRequestSpike(t Thresholds) error {
	if err := validate(t); err != nil {
		return err
	}
	s.mu.Lock()
	s.requestSpike = t
	s.mu.Unlock()
	return nil
}

// LoginFailures returns the failed-login thresholds.
func (s *Settings) LoginFailures() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginFailures
}

// SetLoginFailures updates the failed-login thresholds.
func (s *Settings) SetLoginFailures(t Thresholds) error {
	if err := validate(t); err != nil {
		return err
	}
	s.mu.Lock()
	s.loginFailures = t
	s.mu.Unlock()
	return nil
}
