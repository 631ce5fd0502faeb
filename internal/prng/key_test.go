package prng

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKeyDeterministic(t *testing.T) {
	a := New(42).Normal(8)
	b := New(42).Normal(8)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same key produced different draws (-a +b):\n%s", diff)
	}

	c := New(43).Normal(8)
	if cmp.Equal(a, c) {
		t.Error("different seeds produced identical draws")
	}
}

func TestKeySplitIndependent(t *testing.T) {
	key := New(5678)
	children := key.Split(3)
	if len(children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(children))
	}

	for i := range children {
		if children[i].Equal(key) {
			t.Errorf("child %d equals parent", i)
		}
		for j := i + 1; j < len(children); j++ {
			if children[i].Equal(children[j]) {
				t.Errorf("children %d and %d are equal", i, j)
			}
		}
	}

	again := key.Split(3)
	for i := range children {
		if !children[i].Equal(again[i]) {
			t.Errorf("split is not deterministic at %d", i)
		}
	}

	if !key.Next().Equal(key.Split(1)[0]) {
		t.Error("Next should match Split(1)")
	}
	wide := key.Split(256)
	for i, c := range append(wide, children...) {
		if key.Next().Equal(c) {
			t.Errorf("Next collides with a child %d of a wider split", i)
		}
	}
}

func TestKeySplitEmpty(t *testing.T) {
	if ks := New(1).Split(0); ks != nil {
		t.Errorf("expected nil, got %v", ks)
	}
}

func TestNormalMoments(t *testing.T) {
	xs := New(7).Normal(20000)
	mean, sq := 0.0, 0.0
	for _, x := range xs {
		mean += x
		sq += x * x
	}
	mean /= float64(len(xs))
	variance := sq/float64(len(xs)) - mean*mean

	if math.Abs(mean) > 0.05 {
		t.Errorf("mean too far from 0: %f", mean)
	}
	if math.Abs(variance-1) > 0.05 {
		t.Errorf("variance too far from 1: %f", variance)
	}
}

func TestUniformRange(t *testing.T) {
	xs := New(9).UniformRange(1000, 2, 3)
	for i, x := range xs {
		if x < 2 || x >= 3 {
			t.Fatalf("sample %d out of range: %f", i, x)
		}
	}
}

func TestPermutation(t *testing.T) {
	perm := New(11).Permutation(50)
	seen := make([]bool, 50)
	for _, p := range perm {
		if p < 0 || p >= 50 || seen[p] {
			t.Fatalf("invalid permutation: %v", perm)
		}
		seen[p] = true
	}
	if !cmp.Equal(perm, New(11).Permutation(50)) {
		t.Error("permutation not deterministic")
	}
}
