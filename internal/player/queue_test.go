package player

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	for i := 1; i <= 5; i++ {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != i {
			t.Errorf("Get = %d, want %d", got, i)
		}
	}
	if !q.Empty() {
		t.Error("queue should be empty after draining")
	}
}

func TestQueuePutFront(t *testing.T) {
	q := NewQueue[string](0)
	ctx := context.Background()

	if err := q.Put(ctx, "a"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := q.Put(ctx, "b"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := q.PutFront(ctx, "priority"); err != nil {
		t.Fatalf("PutFront: %v", err)
	}

	want := []string{"priority", "a", "b"}
	for _, w := range want {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != w {
			t.Errorf("Get = %q, want %q", got, w)
		}
	}
}

func TestQueueGetBlocksUntilPut(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()

	got := make(chan int, 1)
	go func() {
		v, err := q.Get(ctx)
		if err != nil {
			t.Errorf("Get: %v", err)
			return
		}
		got <- v
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Put(ctx, 42); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Get = %d, want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not wake after Put")
	}
}

func TestQueueGetDeadlineWhenEmpty(t *testing.T) {
	q := NewQueue[int](0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get = %v, want context.DeadlineExceeded", err)
	}
}

func TestQueueGetPrefersItemOverExpiredContext(t *testing.T) {
	q := NewQueue[int](0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Put(context.Background(), 7); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Even with a dead context, an already-queued item must be delivered so
	// an idle-timeout expiry never drops work that arrived just in time.
	got, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get = %v, want item despite cancelled context", err)
	}
	if got != 7 {
		t.Errorf("Get = %d, want 7", got)
	}
}

func TestQueueCapacityBlocksPut(t *testing.T) {
	q := NewQueue[int](1)
	ctx := context.Background()

	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	putCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := q.Put(putCtx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Put on full queue = %v, want context.DeadlineExceeded", err)
	}

	// Draining one item makes room again.
	if _, err := q.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := q.Put(ctx, 2); err != nil {
		t.Fatalf("Put after drain: %v", err)
	}
}

func TestQueueShufflePreservesItems(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	q.Shuffle()

	if q.Len() != n {
		t.Fatalf("Len = %d after shuffle, want %d", q.Len(), n)
	}
	got := make([]int, 0, n)
	for i := 0; i < n; i++ {
		v, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got = append(got, v)
	}
	sort.Ints(got)
	for i, v := range got {
		if v != i {
			t.Fatalf("shuffle lost or duplicated items: sorted[%d] = %d", i, v)
		}
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if n := q.Clear(); n != 3 {
		t.Errorf("Clear = %d, want 3", n)
	}
	if !q.Empty() {
		t.Error("queue should be empty after Clear")
	}
	if n := q.Clear(); n != 0 {
		t.Errorf("second Clear = %d, want 0", n)
	}
}

func TestQueuePeek(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got := q.Peek(3)
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("Peek(3) = %v, want [0 1 2]", got)
	}
	if q.Len() != 5 {
		t.Errorf("Peek must not consume, Len = %d, want 5", q.Len())
	}
	if got := q.Peek(10); len(got) != 5 {
		t.Errorf("Peek(10) = %d items, want 5", len(got))
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()

	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	q.Close()

	if err := q.Put(ctx, 2); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Put after Close = %v, want ErrQueueClosed", err)
	}

	// Items queued before Close remain retrievable.
	if v, err := q.Get(ctx); err != nil || v != 1 {
		t.Errorf("Get after Close = (%d, %v), want (1, nil)", v, err)
	}
	if _, err := q.Get(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Get on drained closed queue = %v, want ErrQueueClosed", err)
	}

	q.Close() // idempotent
}

func TestQueueCloseWakesBlockedGet(t *testing.T) {
	q := NewQueue[int](0)

	errc := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Get = %v, want ErrQueueClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake blocked Get")
	}
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	q := NewQueue[int](8)
	ctx := context.Background()

	const (
		producers   = 4
		perProducer = 100
	)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Put(ctx, base+i); err != nil {
					t.Errorf("Put: %v", err)
					return
				}
			}
		}(p * perProducer)
	}

	seen := make(map[int]bool)
	var mu sync.Mutex
	var cg sync.WaitGroup
	for c := 0; c < 3; c++ {
		cg.Add(1)
		go func() {
			defer cg.Done()
			for {
				v, err := q.Get(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				if seen[v] {
					t.Errorf("item %d delivered twice", v)
				}
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	// Let consumers drain the tail, then close to release them.
	deadline := time.Now().Add(5 * time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	q.Close()
	cg.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("delivered %d distinct items, want %d", len(seen), producers*perProducer)
	}
}
