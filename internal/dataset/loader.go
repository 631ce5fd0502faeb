package dataset

import (
	"github.com/san-kum/latentode/internal/prng"
)

// Loader cycles through a dataset in minibatches. Every epoch draws a new
// permutation from a fresh key; the final batch of an epoch holds the
// remainder and may be short.
type Loader struct {
	data      *Dataset
	batchSize int
	key       prng.Key
	perm      []int
	pos       int
	epoch     int
}

func NewLoader(d *Dataset, batchSize int, key prng.Key) (*Loader, error) {
	if d == nil || d.Len() == 0 {
		return nil, ErrEmpty
	}
	if batchSize <= 0 {
		return nil, ErrBatchSize
	}
	l := &Loader{data: d, batchSize: batchSize, key: key, epoch: -1}
	l.reshuffle()
	return l, nil
}

func (l *Loader) reshuffle() {
	ks := l.key.Split(2)
	l.perm = ks[0].Permutation(l.data.Len())
	l.key = ks[1]
	l.pos = 0
	l.epoch++
}

// Next returns the indices and trajectories of the next minibatch.
func (l *Loader) Next() ([]int, []Trajectory) {
	if l.pos >= len(l.perm) {
		l.reshuffle()
	}
	end := min(l.pos+l.batchSize, len(l.perm))
	idx := append([]int(nil), l.perm[l.pos:end]...)
	l.pos = end
	return idx, l.data.Subset(idx)
}

// Epoch returns the number of completed passes over the data.
func (l *Loader) Epoch() int { return l.epoch }

// BatchesPerEpoch returns ceil(len / batchSize).
func (l *Loader) BatchesPerEpoch() int {
	return (l.data.Len() + l.batchSize - 1) / l.batchSize
}
