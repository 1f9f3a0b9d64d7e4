package session

import (
	"math/rand/v2"
	"slices"
	"testing"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestPool_AddIsIdempotent(t *testing.T) {
	p := NewPool()
	p.Add("A")
	p.Add("B")
	p.Add("A")

	if got := p.Members(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("Members() = %v, want [A B]", got)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestPool_RemovePreservesOrder(t *testing.T) {
	p := NewPool()
	for _, id := range []string{"A", "B", "C", "D"} {
		p.Add(id)
	}

	p.Remove("B")
	p.Remove("missing")

	if got := p.Members(); !slices.Equal(got, []string{"A", "C", "D"}) {
		t.Errorf("Members() = %v, want [A C D]", got)
	}
	if p.Contains("B") {
		t.Error("Contains(B) after Remove = true")
	}

	// Indexes are rebuilt: removing and re-adding keeps a consistent view.
	p.Remove("C")
	p.Add("B")
	if got := p.Members(); !slices.Equal(got, []string{"A", "D", "B"}) {
		t.Errorf("Members() = %v, want [A D B]", got)
	}
}

func TestPool_PickRandomEmpty(t *testing.T) {
	p := NewPool()
	if id, ok := p.PickRandom(newRand(), "A"); ok {
		t.Errorf("PickRandom on empty pool = %q, true", id)
	}
}

func TestPool_PickRandomExcludesRequester(t *testing.T) {
	p := NewPool()
	p.Add("A")

	if id, ok := p.PickRandom(newRand(), "A"); ok {
		t.Errorf("PickRandom excluding only member = %q, true", id)
	}

	p.Add("B")
	p.Add("C")
	rng := newRand()
	for i := 0; i < 200; i++ {
		id, ok := p.PickRandom(rng, "B")
		if !ok {
			t.Fatal("PickRandom returned false with eligible members")
		}
		if id == "B" {
			t.Fatal("PickRandom returned the excluded identifier")
		}
		if !p.Contains(id) {
			t.Fatalf("PickRandom returned non-member %q", id)
		}
	}
}

func TestPool_PickRandomCoversAllMembers(t *testing.T) {
	p := NewPool()
	members := []string{"A", "B", "C", "D", "E"}
	for _, id := range members {
		p.Add(id)
	}

	seen := make(map[string]int)
	rng := newRand()
	for i := 0; i < 1000; i++ {
		id, ok := p.PickRandom(rng, "")
		if !ok {
			t.Fatal("PickRandom returned false on non-empty pool")
		}
		seen[id]++
	}

	for _, id := range members {
		if seen[id] == 0 {
			t.Errorf("member %q never picked in 1000 draws", id)
		}
	}
}
