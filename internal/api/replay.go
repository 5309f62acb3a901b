package api

import (
	"errors"
	"sync"
	"time"

	"BandwidthBazaar/internal/logger"
)

const (
	// DefaultReplayWindow is how far a nonce may drift from the node clock.
	DefaultReplayWindow = 5 * time.Minute

	// cleanupInterval is the interval between cleanup runs.
	cleanupInterval = 5 * time.Second

	// pruneInterval is the interval between persisted mark pruning runs.
	pruneInterval = time.Minute
)

var (
	// ErrReplay is returned for a transaction hash already accepted.
	ErrReplay = errors.New("transaction already submitted")

	// ErrStaleNonce is returned for a nonce outside the replay window.
	ErrStaleNonce = errors.New("nonce outside replay window")
)

// MarkPruner deletes persisted transaction marks accepted before a cutoff.
type MarkPruner interface {
	PruneMarks(before int64) (int, error)
}

// ReplayGuard rejects stale and duplicate transactions.
//
// A nonce is accepted within +/- window of the node clock, so a hash must
// be remembered for 2*window inclusive: a nonce at the future edge stays
// acceptable that long. After that the nonce check alone rejects it.
//
// The in-memory set covers concurrent submissions. Hashes that survive a
// restart are the executor's persisted marks, which the guard prunes on
// the same ttl.
type ReplayGuard struct {
	seen   map[[32]byte]int64 // seen maps tx hash to acceptance time (unix nano)
	mu     sync.RWMutex       // mu protects the seen map
	window int64              // window in nanoseconds
	ttl    int64              // ttl in nanoseconds
	now    func() time.Time
	marks  MarkPruner     // marks is nil when no persisted marks are kept
	stop   chan struct{}  // stop signals the cleanup goroutine to stop
	wg     sync.WaitGroup // wg waits for the cleanup goroutine
}

// NewReplayGuard creates a guard with the given window.
// A non-positive window selects DefaultReplayWindow. marks may be nil.
func NewReplayGuard(window time.Duration, marks MarkPruner) *ReplayGuard {
	return newReplayGuard(window, time.Now, marks)
}

func newReplayGuard(window time.Duration, now func() time.Time, marks MarkPruner) *ReplayGuard {
	if window <= 0 {
		window = DefaultReplayWindow
	}

	g := &ReplayGuard{
		seen:   make(map[[32]byte]int64),
		window: int64(window),
		ttl:    2 * int64(window),
		now:    now,
		marks:  marks,
		stop:   make(chan struct{}),
	}

	g.startCleanup()

	return g
}

// Check accepts a transaction exactly once. If accepted, the hash is
// recorded and later checks of the same hash return ErrReplay.
func (g *ReplayGuard) Check(hash [32]byte, nonce uint64) error {
	now := g.now().UnixNano()

	drift := now - int64(nonce)
	if int64(nonce) < 0 || drift > g.window || drift < -g.window {
		return ErrStaleNonce
	}

	// Fast path: check if already seen with read lock
	g.mu.RLock()
	ts, exists := g.seen[hash]
	g.mu.RUnlock()

	if exists && now-ts <= g.ttl {
		return ErrReplay
	}

	// Slow path: double-check after acquiring write lock
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, exists = g.seen[hash]
	if exists && now-ts <= g.ttl {
		return ErrReplay
	}

	g.seen[hash] = now

	return nil
}

// Len returns the number of remembered hashes.
func (g *ReplayGuard) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.seen)
}

// Close stops the cleanup goroutine.
func (g *ReplayGuard) Close() {
	close(g.stop)
	g.wg.Wait()
}

// startCleanup starts the background cleanup goroutine.
func (g *ReplayGuard) startCleanup() {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		pruneTicker := time.NewTicker(pruneInterval)
		defer pruneTicker.Stop()

		for {
			select {
			case <-ticker.C:
				g.cleanup()
			case <-pruneTicker.C:
				g.prune()
			case <-g.stop:
				return
			}
		}
	}()
}

// cleanup removes expired entries from the seen map.
func (g *ReplayGuard) cleanup() {
	now := g.now().UnixNano()

	g.mu.Lock()

	for hash, ts := range g.seen {
		if now-ts > g.ttl {
			delete(g.seen, hash)
		}
	}

	g.mu.Unlock()
}

// prune deletes persisted marks older than the ttl.
func (g *ReplayGuard) prune() {
	if g.marks == nil {
		return
	}

	n, err := g.marks.PruneMarks(g.now().UnixNano() - g.ttl)
	if err != nil {
		logger.Warn("prune tx marks failed", "error", err)
		return
	}

	if n > 0 {
		logger.Debug("pruned tx marks", "count", n)
	}
}
