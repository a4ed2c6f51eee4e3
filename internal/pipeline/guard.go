package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// runGuard admits one run at a time. The mutex covers the process; the optional lock file
// covers other processes sharing the same path.
type runGuard struct {
	mu       sync.Mutex
	lockPath string
}

func (g *runGuard) acquire() (release func(), err error) {
	if !g.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	if g.lockPath == "" {
		return g.mu.Unlock, nil
	}

	if err := os.MkdirAll(filepath.Dir(g.lockPath), 0o755); err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fileLock := flock.New(g.lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("acquire import lock %s: %w", g.lockPath, err)
	}
	if !locked {
		g.mu.Unlock()
		return nil, ErrRunInProgress
	}

	return func() {
		_ = fileLock.Unlock()
		g.mu.Unlock()
	}, nil
}
