package clock

import (
	"sync"
	"time"
)

const (
	// DefaultTickInterval is the polling granularity used for free-running playback.
	DefaultTickInterval = 50 * time.Millisecond
	// MaxTickInterval bounds the polling granularity.
	MaxTickInterval = 100 * time.Millisecond
)

// Scheduler invokes fn periodically until the returned cancel function is called.
// Cancel does not wait for an invocation already in flight.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// NormalizeInterval clamps interval into (0, MaxTickInterval].
func NormalizeInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return DefaultTickInterval
	}
	if interval > MaxTickInterval {
		return MaxTickInterval
	}
	return interval
}

// TickerScheduler runs callbacks on a time.Ticker goroutine.
type TickerScheduler struct{}

// NewTickerScheduler constructs a ticker-backed scheduler.
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

// Every starts a ticker goroutine. Callbacks never overlap.
func (s *TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(NormalizeInterval(interval))
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
