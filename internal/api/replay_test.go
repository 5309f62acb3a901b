package api

import (
	"errors"
	"testing"
	"time"
)

// fakeClock is a settable time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestGuard(t *testing.T, window time.Duration) (*ReplayGuard, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	g := newReplayGuard(window, clock.Now, nil)

	t.Cleanup(g.Close)

	return g, clock
}

func TestReplayGuard_RejectsDuplicate(t *testing.T) {
	g, clock := newTestGuard(t, time.Minute)
	nonce := uint64(clock.now.UnixNano())

	if err := g.Check([32]byte{1}, nonce); err != nil {
		t.Fatalf("first check: %v", err)
	}

	if err := g.Check([32]byte{1}, nonce); !errors.Is(err, ErrReplay) {
		t.Errorf("second check: err = %v, want ErrReplay", err)
	}

	if err := g.Check([32]byte{2}, nonce); err != nil {
		t.Errorf("different hash: %v", err)
	}
}

func TestReplayGuard_Window(t *testing.T) {
	g, clock := newTestGuard(t, time.Minute)
	now := clock.now

	cases := []struct {
		name  string
		nonce time.Time
		ok    bool
	}{
		{"past edge", now.Add(-time.Minute), true},
		{"future edge", now.Add(time.Minute), true},
		{"too old", now.Add(-time.Minute - time.Nanosecond), false},
		{"too far ahead", now.Add(time.Minute + time.Nanosecond), false},
	}

	for i, tc := range cases {
		err := g.Check([32]byte{byte(i + 1)}, uint64(tc.nonce.UnixNano()))
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}

		if !tc.ok && !errors.Is(err, ErrStaleNonce) {
			t.Errorf("%s: err = %v, want ErrStaleNonce", tc.name, err)
		}
	}

	// Nonces above MaxInt64 wrap negative and are always stale.
	if err := g.Check([32]byte{9}, ^uint64(0)); !errors.Is(err, ErrStaleNonce) {
		t.Errorf("huge nonce: err = %v, want ErrStaleNonce", err)
	}
}

func TestReplayGuard_RemembersUntilNonceExpires(t *testing.T) {
	g, clock := newTestGuard(t, time.Minute)

	// A nonce at the future edge stays valid for two windows.
	nonce := uint64(clock.now.Add(time.Minute).UnixNano())
	if err := g.Check([32]byte{7}, nonce); err != nil {
		t.Fatalf("first check: %v", err)
	}

	clock.now = clock.now.Add(2*time.Minute - time.Second)
	g.cleanup()

	if err := g.Check([32]byte{7}, nonce); !errors.Is(err, ErrReplay) {
		t.Errorf("within ttl: err = %v, want ErrReplay", err)
	}

	clock.now = clock.now.Add(2 * time.Second)
	g.cleanup()

	if g.Len() != 0 {
		t.Errorf("len = %d after expiry, want 0", g.Len())
	}

	if err := g.Check([32]byte{7}, nonce); !errors.Is(err, ErrStaleNonce) {
		t.Errorf("after ttl: err = %v, want ErrStaleNonce", err)
	}
}

func TestReplayGuard_RemembersAtExactTTL(t *testing.T) {
	g, clock := newTestGuard(t, time.Minute)

	nonce := uint64(clock.now.Add(time.Minute).UnixNano())
	if err := g.Check([32]byte{8}, nonce); err != nil {
		t.Fatalf("first check: %v", err)
	}

	// The nonce is exactly at the past edge here, so it still passes the
	// drift check and the hash must still be known.
	clock.now = clock.now.Add(2 * time.Minute)
	g.cleanup()

	if err := g.Check([32]byte{8}, nonce); !errors.Is(err, ErrReplay) {
		t.Errorf("at ttl: err = %v, want ErrReplay", err)
	}

	clock.now = clock.now.Add(time.Nanosecond)
	g.cleanup()

	if g.Len() != 0 {
		t.Errorf("len = %d one nanosecond past ttl, want 0", g.Len())
	}
}

// recordingPruner records the cutoffs it was asked to prune.
type recordingPruner struct {
	cutoffs []int64
}

func (p *recordingPruner) PruneMarks(before int64) (int, error) {
	p.cutoffs = append(p.cutoffs, before)
	return 1, nil
}

func TestReplayGuard_PrunesMarksAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	pruner := &recordingPruner{}

	g := newReplayGuard(time.Minute, clock.Now, pruner)
	defer g.Close()

	g.prune()

	want := clock.now.Add(-2 * time.Minute).UnixNano()
	if len(pruner.cutoffs) != 1 || pruner.cutoffs[0] != want {
		t.Errorf("cutoffs = %v, want [%d]", pruner.cutoffs, want)
	}
}

func TestReplayGuard_DefaultWindow(t *testing.T) {
	g := NewReplayGuard(0, nil)
	defer g.Close()

	if g.window != int64(DefaultReplayWindow) {
		t.Errorf("window = %d, want %d", g.window, int64(DefaultReplayWindow))
	}
}
