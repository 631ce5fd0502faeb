// Package prng provides splittable, deterministic random keys.
//
// A [Key] is an immutable value. Drawing from a key never changes it, so
// the same key always yields the same numbers; callers obtain fresh
// streams with [Key.Split]. A key that has been split should not be used
// for drawing afterwards.
//
//	key := prng.New(5678)
//	ks := key.Split(2)
//	eps := ks[0].Normal(16)
package prng

import (
	"encoding/binary"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Key seeds a ChaCha8 stream.
type Key struct {
	seed [32]byte
}

const splitTag = 0x9e3779b97f4a7c15

// New derives a key from an integer seed.
func New(seed int64) Key {
	var k Key
	x := uint64(seed)
	for i := 0; i < 4; i++ {
		x += splitTag
		binary.LittleEndian.PutUint64(k.seed[i*8:], mix64(x))
	}
	return k
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (k Key) source() *rand.ChaCha8 {
	return rand.NewChaCha8(k.seed)
}

// Split returns n independent child keys. The width n is mixed into the
// derivation, so splits of different widths share no children.
func (k Key) Split(n int) []Key {
	if n <= 0 {
		return nil
	}
	var tagged [32]byte
	for i := 0; i < 4; i++ {
		w := binary.LittleEndian.Uint64(k.seed[i*8:])
		binary.LittleEndian.PutUint64(tagged[i*8:], mix64(w^(splitTag+uint64(n))))
	}
	src := rand.NewChaCha8(tagged)
	keys := make([]Key, n)
	for i := range keys {
		for j := 0; j < 4; j++ {
			binary.LittleEndian.PutUint64(keys[i].seed[j*8:], src.Uint64())
		}
	}
	return keys
}

// Next is shorthand for k.Split(1)[0].
func (k Key) Next() Key {
	return k.Split(1)[0]
}

// Normal draws n standard normal samples.
func (k Key) Normal(n int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: k.source()}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// Uniform draws n samples from U(0, 1).
func (k Key) Uniform(n int) []float64 {
	return k.UniformRange(n, 0, 1)
}

// UniformRange draws n samples from U(lo, hi).
func (k Key) UniformRange(n int, lo, hi float64) []float64 {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: k.source()}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// Permutation returns a random permutation of [0, n).
func (k Key) Permutation(n int) []int {
	return rand.New(k.source()).Perm(n)
}

// Equal reports whether two keys produce the same stream.
func (k Key) Equal(other Key) bool {
	return k.seed == other.seed
}
