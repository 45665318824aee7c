package mapmgr

import (
	"math"
	"math/bits"
	"sync"
)

// idPool hands out instance ids, smallest free first. Bit i set means id i is taken.
// Id 0 is reserved for non-instanced maps.
type idPool struct {
	mu    sync.Mutex
	used  []uint64
	next  uint32
	max   uint32
	inUse int
}

func newIDPool(limit uint32) *idPool {
	if limit == 0 {
		limit = math.MaxUint32
	}
	p := &idPool{max: limit}
	p.reset(0)
	return p
}

func (p *idPool) reset(maxExisting uint32) {
	p.used = make([]uint64, int(maxExisting)/64+1)
	p.used[0] = 1
	p.inUse = 0
	p.next = 1
}

func (p *idPool) grow(id uint32) {
	need := int(id)/64 + 1
	if need <= len(p.used) {
		return
	}
	p.used = append(p.used, make([]uint64, max(need, 2*len(p.used))-len(p.used))...)
}

func (p *idPool) isUsed(id uint32) bool {
	w := int(id) / 64
	return w < len(p.used) && p.used[w]&(1<<(id%64)) != 0
}

func (p *idPool) set(id uint32) bool {
	p.grow(id)
	w, b := int(id)/64, uint64(1)<<(id%64)
	if p.used[w]&b != 0 {
		return false
	}
	p.used[w] |= b
	p.inUse++
	return true
}

// advance moves next to the smallest free id at or after from.
func (p *idPool) advance(from uint32) {
	for w := int(from) / 64; w < len(p.used); w++ {
		free := ^p.used[w]
		if w == int(from)/64 {
			free &= ^uint64(0) << (from % 64)
		}
		if free != 0 {
			p.next = uint32(w*64 + bits.TrailingZeros64(free))
			return
		}
	}
	p.next = uint32(len(p.used) * 64)
}

func (p *idPool) register(id uint32) {
	if id == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.set(id) && id == p.next {
		p.advance(id + 1)
	}
}

func (p *idPool) generate() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next == 0 || p.next >= p.max {
		return 0, false
	}
	id := p.next
	p.set(id)
	p.advance(id + 1)
	return id, true
}

func (p *idPool) free(id uint32) {
	if id == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isUsed(id) {
		return
	}
	p.used[id/64] &^= 1 << (id % 64)
	p.inUse--
	p.next = min(p.next, id)
}

func (p *idPool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

func (p *idPool) peekNext() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}
