// Package globaltime is the process clock. Tests freeze it to make run timestamps stable.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Since is time.Since against the process clock.
func Since(start time.Time) time.Duration {
	return Now().Sub(start)
}

// Freeze pins the clock to t and returns a func that restores the real clock.
func Freeze(t time.Time) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
	return func() {
		mu.Lock()
		defer mu.Unlock()
		nowFunc = time.Now
	}
}
