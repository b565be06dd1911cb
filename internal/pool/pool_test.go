package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testHostKey() HostKey {
	return HostKey{Host: "h1", Port: 22, User: "root"}
}

// countingDial simulates a connect attempt and counts how many times it was
// invoked, used to verify coalescing collapses concurrent first-connects
// into exactly one underlying attempt.
func countingDial(calls *int64, delay time.Duration) func(context.Context, HostKey, Credential, KnownHostsPolicy, string) (*Transport, []string, error) {
	return func(_ context.Context, hk HostKey, _ Credential, _ KnownHostsPolicy, _ string) (*Transport, []string, error) {
		atomic.AddInt64(calls, 1)
		time.Sleep(delay)
		return &Transport{HostKey: hk, CreatedAt: time.Now(), LastUsedAt: time.Now()}, nil, nil
	}
}

func newTestPool(cfg Config, dialFn func(context.Context, HostKey, Credential, KnownHostsPolicy, string) (*Transport, []string, error)) *Pool {
	p := New(cfg, nil, zerolog.Nop())
	p.dialFunc = dialFn
	return p
}

// TestLeaseCoalescesConcurrentFirstConnect verifies that N simultaneous
// first-connect requests produce exactly one dial, and that the one
// resulting Transport is handed to each caller in turn (never to two
// concurrently) — the coalesced callers serialize through the normal
// release queue rather than sharing the Transport at once.
func TestLeaseCoalescesConcurrentFirstConnect(t *testing.T) {
	var calls int64
	p := newTestPool(Config{PerHostMaxConnections: 5}, countingDial(&calls, 20*time.Millisecond))
	defer p.Shutdown(0)

	hk := testHostKey()
	const n = 10
	var concurrent, maxConcurrent int64
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			tr, _, err := p.Lease(context.Background(), hk, Credential{Kind: CredentialPassword, Secret: "x"})
			if err != nil {
				results <- err
				return
			}
			cur := atomic.AddInt64(&concurrent, 1)
			for {
				prev := atomic.LoadInt64(&maxConcurrent)
				if cur <= prev || atomic.CompareAndSwapInt64(&maxConcurrent, prev, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&concurrent, -1)
			p.Release(tr)
			results <- nil
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Errorf("lease %d failed: %v", i, err)
		}
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("expected exactly 1 connect attempt, got %d", calls)
	}
	if atomic.LoadInt64(&maxConcurrent) != 1 {
		t.Errorf("expected at most 1 concurrent holder of the coalesced transport, saw %d", maxConcurrent)
	}

	e := p.entryFor(hk)
	e.mu.Lock()
	active, idle := e.active, len(e.idle)
	e.mu.Unlock()
	if active != 0 || idle != 1 {
		t.Errorf("expected the single transport to end up idle (active=0, idle=1), got active=%d idle=%d", active, idle)
	}
}

func TestSixthLeaseBlocksUntilRelease(t *testing.T) {
	var calls int64
	p := newTestPool(Config{PerHostMaxConnections: 5}, countingDial(&calls, 0))
	defer p.Shutdown(0)

	hk := testHostKey()
	var leased []*Transport
	for i := 0; i < 5; i++ {
		tr, _, err := p.Lease(context.Background(), hk, Credential{Kind: CredentialPassword, Secret: "x"})
		if err != nil {
			t.Fatalf("lease %d: %v", i, err)
		}
		leased = append(leased, tr)
	}

	sixthDone := make(chan struct{})
	go func() {
		_, _, err := p.Lease(context.Background(), hk, Credential{Kind: CredentialPassword, Secret: "x"})
		if err != nil {
			t.Errorf("sixth lease failed: %v", err)
		}
		close(sixthDone)
	}()

	select {
	case <-sixthDone:
		t.Fatal("sixth lease returned before any release")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(leased[0])

	select {
	case <-sixthDone:
	case <-time.After(time.Second):
		t.Fatal("sixth lease did not unblock after release")
	}
}

func TestLeaseCancelledWhileQueuedRemovesWaiter(t *testing.T) {
	var calls int64
	p := newTestPool(Config{PerHostMaxConnections: 1}, countingDial(&calls, 0))
	defer p.Shutdown(0)

	hk := testHostKey()
	held, _, err := p.Lease(context.Background(), hk, Credential{Kind: CredentialPassword, Secret: "x"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Lease(ctx, hk, Credential{Kind: CredentialPassword, Secret: "x"})
	if err == nil {
		t.Fatal("expected cancellation error")
	}

	e := p.entryFor(hk)
	e.mu.Lock()
	waiting := len(e.waiters)
	e.mu.Unlock()
	if waiting != 0 {
		t.Errorf("expected waiter to be removed on cancellation, got %d still queued", waiting)
	}

	p.Release(held)
}
