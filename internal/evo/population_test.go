package evo

import (
	"math/rand"
	"testing"
)

func TestInitPopulationRespectsGeneBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	population, err := InitPopulation(rng, 1_000_000, 500)
	if err != nil {
		t.Fatalf("init population: %v", err)
	}
	if len(population) != 500 {
		t.Fatalf("expected 500 chromosomes, got %d", len(population))
	}
	for i, ch := range population {
		for g, gene := range ch {
			if gene < 1 || gene > 500_000 {
				t.Fatalf("chromosome %d gene %d out of [1, 500000]: %d", i, g, gene)
			}
		}
	}
}

func TestInitPopulationSmallTargetCollapsesToOne(t *testing.T) {
	for _, y := range []int64{1, 2, 3} {
		population, err := InitPopulation(rand.New(rand.NewSource(1)), y, 20)
		if err != nil {
			t.Fatalf("y=%d init population: %v", y, err)
		}
		for _, ch := range population {
			for _, gene := range ch {
				if gene != 1 {
					t.Fatalf("y=%d expected every gene to be 1, got %v", y, ch)
				}
			}
		}
	}
}

func TestInitPopulationRejectsInvalidArguments(t *testing.T) {
	if _, err := InitPopulation(nil, 10, 4); err == nil {
		t.Fatal("expected missing random source error")
	}
	if _, err := InitPopulation(rand.New(rand.NewSource(1)), 10, 0); err == nil {
		t.Fatal("expected population size error")
	}
}

func TestGeneBound(t *testing.T) {
	cases := map[int64]int64{1: 1, 2: 1, 3: 1, 4: 2, 9: 4, 1_000_000: 500_000}
	for y, want := range cases {
		if got := GeneBound(y); got != want {
			t.Fatalf("GeneBound(%d)=%d want %d", y, got, want)
		}
	}
}
