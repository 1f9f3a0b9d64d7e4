package framelog

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushPopOrder(t *testing.T) {
	q := newQueue[int](2)
	for i := 0; i < 5; i++ {
		if !q.push(i) {
			t.Fatalf("push(%d) returned false", i)
		}
	}
	if q.grows != 2 {
		t.Errorf("grows = %d, want 2", q.grows)
	}

	got, ok := q.popAll()
	if !ok {
		t.Fatal("popAll() returned false")
	}
	for i, v := range got {
		if v != i {
			t.Errorf("got[%d] = %d, want %d", i, v, i)
		}
	}
	if q.len() != 0 {
		t.Errorf("len() = %d, want 0", q.len())
	}
}

func TestQueue_CloseDrainsThenStops(t *testing.T) {
	q := newQueue[string](4)
	q.push("a")
	q.close()

	if q.push("b") {
		t.Error("push after close returned true")
	}

	got, ok := q.popAll()
	if !ok || len(got) != 1 || got[0] != "a" {
		t.Errorf("popAll() = %v, %v; want [a], true", got, ok)
	}
	if _, ok := q.popAll(); ok {
		t.Error("popAll() on closed empty queue returned true")
	}
}

func TestQueue_PopAllBlocksUntilPush(t *testing.T) {
	q := newQueue[int](1)

	var wg sync.WaitGroup
	var got []int
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, _ = q.popAll()
	}()

	time.Sleep(20 * time.Millisecond)
	q.push(7)
	wg.Wait()

	if len(got) != 1 || got[0] != 7 {
		t.Errorf("popAll() = %v, want [7]", got)
	}
}
