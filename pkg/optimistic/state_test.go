package optimistic

import (
	"context"
	"sync"
	"testing"
)

func TestStateSubscribe(t *testing.T) {
	s := NewState(1)
	var seen []int
	unsub := s.Subscribe(func(v int) { seen = append(seen, v) })

	s.Set(2)
	if got := s.Update(func(n int) int { return n * 5 }); got != 10 {
		t.Fatalf("Update() = %d", got)
	}
	unsub()
	s.Set(3)

	if len(seen) != 2 || seen[0] != 2 || seen[1] != 10 {
		t.Errorf("seen = %v, want [2 10]", seen)
	}
	if s.Version() != 3 {
		t.Errorf("Version() = %d, want 3", s.Version())
	}
}

func TestStateSubscriberMayReadAndWrite(t *testing.T) {
	s := NewState(0)
	s.Subscribe(func(v int) {
		if v == 1 {
			s.Set(s.Get() + 1)
		}
	})
	s.Set(1)
	if got := s.Get(); got != 2 {
		t.Errorf("Get() = %d, want 2", got)
	}
}

func TestStateConcurrentUpdates(t *testing.T) {
	s := NewState(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	if got := s.Get(); got != 50 {
		t.Errorf("Get() = %d, want 50", got)
	}
}

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry()
	tok, ok := r.tryAcquire("x")
	if !ok {
		t.Fatal("tryAcquire failed on free target")
	}
	if _, ok := r.tryAcquire("x"); ok {
		t.Fatal("tryAcquire succeeded on busy target")
	}
	r.release("x", tok+100)
	if !r.Busy("x") {
		t.Fatal("release with foreign token freed the target")
	}
	r.release("x", tok)
	if r.Busy("x") {
		t.Fatal("target still busy after release")
	}
}

func TestRegistrySupersedeCancels(t *testing.T) {
	r := NewRegistry()
	tok, _ := r.tryAcquire("x")
	ctx, cancel := context.WithCancel(context.Background())
	r.setCancel("x", tok, cancel)

	next, prior := r.supersede("x", func(any) any { return 1 })
	if prior == nil {
		t.Fatal("supersede did not hand back the pending commit's cancel")
	}
	prior()
	if ctx.Err() == nil {
		t.Error("pending commit not cancelled")
	}
	if r.settle("x", tok) {
		t.Error("settle() = true for stale token")
	}
	if !r.settle("x", next) {
		t.Error("settle() = false for owner")
	}
}

func TestRegistrySupersedeKeepsOldestBase(t *testing.T) {
	r := NewRegistry()
	keepOrSet := func(v int) func(any) any {
		return func(prior any) any {
			if prior != nil {
				return prior
			}
			return v
		}
	}
	r.supersede("x", keepOrSet(1))
	r.supersede("x", keepOrSet(2))

	var seen any
	r.supersede("x", func(prior any) any { seen = prior; return prior })
	if seen != 1 {
		t.Errorf("base = %v, want 1 from the first unconfirmed action", seen)
	}

	// A settled owner clears the base for whoever comes next.
	tok, _ := r.supersede("x", keepOrSet(3))
	r.settle("x", tok)
	r.supersede("x", func(prior any) any { seen = prior; return prior })
	if seen != nil {
		t.Errorf("base after settle = %v, want nil", seen)
	}
}

func TestRegistryRebase(t *testing.T) {
	r := NewRegistry()
	inc := func(prior any) any { return prior.(int) + 1 }

	r.rebase("x", inc) // no entry
	tok, _ := r.tryAcquire("x")
	r.rebase("x", inc) // entry without base
	r.release("x", tok)

	r.supersede("x", func(any) any { return 1 })
	r.rebase("x", inc)
	var seen any
	r.supersede("x", func(prior any) any { seen = prior; return prior })
	if seen != 2 {
		t.Errorf("base = %v, want 2", seen)
	}
}

func TestRegistrySetCancelAfterSupersede(t *testing.T) {
	r := NewRegistry()
	tok, _ := r.tryAcquire("x")
	r.supersede("x", func(any) any { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	r.setCancel("x", tok, cancel)
	if ctx.Err() == nil {
		t.Error("setCancel for a stale token must cancel immediately")
	}
}

func TestRegistryEnqueueCancelled(t *testing.T) {
	r := NewRegistry()
	tok, _ := r.tryAcquire("x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.enqueue(ctx, "x", 5)
		done <- err
	}()
	waitFor(t, func() bool { return r.Queued("x") == 1 })
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("enqueue() error = %v", err)
	}
	if r.Queued("x") != 0 {
		t.Error("cancelled waiter left in queue")
	}
	r.release("x", tok)
	if r.Busy("x") {
		t.Error("target handed to a cancelled waiter")
	}
}
