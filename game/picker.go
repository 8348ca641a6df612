package game

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"
	"time"
)

// Picker draws a species at random, weighted by rarity tier. Weights are
// scaled to integer milli-weights and sampled by binary search over the
// cumulative sums, so relative odds hold to within rounding.
type Picker struct {
	species    []Species
	cumulative []int
	total      int

	mu  sync.Mutex
	rng *mrand.Rand
}

// NewPicker builds a picker over the catalog. A nil rng gets a crypto-seeded
// math/rand source (draw quality, not security).
func NewPicker(species []Species, rng *mrand.Rand) *Picker {
	if rng == nil {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
		} else {
			rng = mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(b[:]))))
		}
	}

	p := &Picker{
		species:    species,
		cumulative: make([]int, len(species)),
		rng:        rng,
	}
	total := 0
	for i, sp := range species {
		w := int(sp.Rarity.Weight() * 1000)
		if w < 1 {
			w = 1
		}
		total += w
		p.cumulative[i] = total
	}
	p.total = total
	return p
}

// Roll draws a uniform float in [0,1) from the picker's rng. Pick and Roll
// share one mutex; the rng itself is not safe for concurrent use.
func (p *Picker) Roll() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

// Pick draws one species. Equal-weight entries are equally likely; the uniform
// roll over the summed weights breaks ties by chance alone.
func (p *Picker) Pick() Species {
	p.mu.Lock()
	roll := p.rng.Intn(p.total) // random int from [0,total)
	p.mu.Unlock()

	lo, hi := 0, len(p.cumulative)-1
	for lo < hi {
		mid := (lo + hi) >> 1
		if roll < p.cumulative[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return p.species[lo]
}
