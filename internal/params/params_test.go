package params

import (
	"errors"
	"testing"
)

func TestDefault_Valid(t *testing.T) {
	p := Default()
	if err := p.Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	if p.MaxHops != 10 || p.NumNodes != 256 || p.MaxOutDegree != 32 || p.WeightSum != 1<<32 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []Params{
		{MaxHops: 0, NumNodes: 1, MaxOutDegree: 1, WeightSum: 1},
		{MaxHops: 1, NumNodes: 0, MaxOutDegree: 1, WeightSum: 1},
		{MaxHops: 1, NumNodes: 1, MaxOutDegree: 0, WeightSum: 1},
		{MaxHops: 1, NumNodes: 1, MaxOutDegree: 1, WeightSum: 0},
		{MaxHops: 1, NumNodes: 1, MaxOutDegree: 1, WeightSum: 1<<32 + 1},
	}
	for i, c := range cases {
		if err := c.Validate(); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("case %d: want ErrInvalidParams, got %v", i, err)
		}
	}
}
