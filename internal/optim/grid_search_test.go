package optim

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestGridSearchFindsMinimum(t *testing.T) {
	g, err := NewGridSearch([]string{"lr", "width"}, [][]float64{{1e-3, 1e-2, 1e-1}, {8, 16}})
	if err != nil {
		t.Fatal(err)
	}
	if g.Size() != 6 {
		t.Fatalf("size %d, want 6", g.Size())
	}
	best, score, trials, err := g.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		return math.Abs(math.Log10(p["lr"])+2) + math.Abs(p["width"]-16), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if best["lr"] != 1e-2 || best["width"] != 16 || score != 0 {
		t.Errorf("best %v score %f", best, score)
	}
	if len(trials) != 6 {
		t.Errorf("%d trials recorded", len(trials))
	}
	if r := Ranked(trials); r[0].Score != 0 {
		t.Errorf("ranking starts at %f", r[0].Score)
	}
}

func TestGridSearchSkipsFailures(t *testing.T) {
	g, _ := NewGridSearch([]string{"x"}, [][]float64{{1, 2, 3}})
	boom := errors.New("diverged")
	best, score, trials, err := g.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		if p["x"] == 1 {
			return 0, boom
		}
		return p["x"], nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if best["x"] != 2 || score != 2 {
		t.Errorf("best %v score %f", best, score)
	}
	if !errors.Is(trials[0].Err, boom) {
		t.Errorf("failure not recorded: %+v", trials[0])
	}
}

func TestGridSearchAllFail(t *testing.T) {
	g, _ := NewGridSearch([]string{"x"}, [][]float64{{1}})
	_, _, _, err := g.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return math.NaN(), nil
	})
	if !errors.Is(err, ErrNoCandidate) {
		t.Errorf("expected ErrNoCandidate, got %v", err)
	}
}

func TestGridSearchCanceled(t *testing.T) {
	g, _ := NewGridSearch([]string{"x"}, [][]float64{{1, 2}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err := g.Search(ctx, func(context.Context, map[string]float64) (float64, error) { return 0, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewGridSearchValidation(t *testing.T) {
	if _, err := NewGridSearch([]string{"a"}, nil); err == nil {
		t.Error("expected error for mismatched lengths")
	}
	if _, err := NewGridSearch([]string{"a"}, [][]float64{{}}); err == nil {
		t.Error("expected error for empty range")
	}
}
