// Package rng provides a seeded Mulberry32 generator so that game setup
// (deck shuffles, random picks) is reproducible when a transaction is retried.
package rng

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyCollection is returned by Pick when there is nothing to pick from.
var ErrEmptyCollection = errors.New("cannot pick from an empty collection")

// Rand is a Mulberry32 stream. The zero value is a valid stream seeded with 0.
type Rand struct {
	state uint32
}

// New creates a stream from a string seed. The string is hashed with xxhash
// and folded to 32 bits.
func New(seed string) *Rand {
	return &Rand{state: fold(xxhash.Sum64String(seed))}
}

// NewFromInt creates a stream from a numeric seed.
func NewFromInt(seed int64) *Rand {
	return &Rand{state: fold(uint64(seed))}
}

func fold(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}

// Uint32 advances the stream and returns the next raw value.
func (r *Rand) Uint32() uint32 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return t ^ (t >> 14)
}

// Float64 returns the next value in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint32()) / 4294967296.0
}

// Intn returns a value in [0, n). It panics if n <= 0, like math/rand.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn called with non-positive n")
	}
	return int(r.Float64() * float64(n))
}

// RandomInt returns the first value of the seed's stream mapped to [min, max].
func RandomInt(seed string, min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + New(seed).Intn(max-min+1)
}

// Shuffle returns a Fisher-Yates shuffled copy of items. The input slice is
// never modified.
func Shuffle[T any](items []T, seed string) []T {
	out := make([]T, len(items))
	copy(out, items)
	r := New(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Pick returns one element of items chosen by the seed's stream.
func Pick[T any](items []T, seed string) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, ErrEmptyCollection
	}
	return items[New(seed).Intn(len(items))], nil
}

// DeckSeed is the shuffle seed for one side of a game: "<gameID>-host-deck"
// or "<gameID>-opponent-deck".
func DeckSeed(gameID, side string) string {
	return fmt.Sprintf("%s-%s-deck", gameID, side)
}
