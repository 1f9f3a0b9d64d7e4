package session

import (
	"math/rand/v2"
	"slices"
)

// Pool is an insertion-ordered set of identifiers awaiting a peer match.
type Pool struct {
	members []string
	index   map[string]int
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{index: make(map[string]int)}
}

// Add appends id unless it is already a member.
func (p *Pool) Add(id string) {
	if _, ok := p.index[id]; ok {
		return
	}
	p.index[id] = len(p.members)
	p.members = append(p.members, id)
}

// Remove drops id if present, keeping the order of the remaining members.
func (p *Pool) Remove(id string) {
	i, ok := p.index[id]
	if !ok {
		return
	}
	p.members = slices.Delete(p.members, i, i+1)
	delete(p.index, id)
	for j := i; j < len(p.members); j++ {
		p.index[p.members[j]] = j
	}
}

// Contains reports whether id is a member.
func (p *Pool) Contains(id string) bool {
	_, ok := p.index[id]
	return ok
}

// PickRandom selects a member uniformly at random, never returning exclude.
// Returns false when no eligible member exists.
func (p *Pool) PickRandom(rng *rand.Rand, exclude string) (string, bool) {
	n := len(p.members)
	skip, hasSkip := p.index[exclude]
	if hasSkip {
		n--
	}
	if n <= 0 {
		return "", false
	}

	i := rng.IntN(n)
	if hasSkip && i >= skip {
		i++
	}
	return p.members[i], true
}

// Members returns a copy of the pool in insertion order.
func (p *Pool) Members() []string {
	return slices.Clone(p.members)
}

// Len returns the number of members.
func (p *Pool) Len() int {
	return len(p.members)
}
