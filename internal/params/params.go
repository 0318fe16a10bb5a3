// Package params holds the per-deployment protocol constants. A Params
// value is passed into every protocol operation, so several deployments
// (or epochs) can coexist in one process.
package params

import (
	"errors"
	"fmt"
)

const (
	DefaultMaxHops      = 10
	DefaultNumNodes     = 256
	DefaultMaxOutDegree = 32
	DefaultWeightSum    = uint64(1) << 32
)

var ErrInvalidParams = errors.New("invalid params")

type Params struct {
	MaxHops      int    `toml:"MaxHops" json:"max_hops"`
	NumNodes     int    `toml:"NumNodes" json:"num_nodes"`
	MaxOutDegree int    `toml:"MaxOutDegree" json:"max_out_degree"`
	WeightSum    uint64 `toml:"WeightSum" json:"weight_sum"`
}

func Default() Params {
	return Params{
		MaxHops:      DefaultMaxHops,
		NumNodes:     DefaultNumNodes,
		MaxOutDegree: DefaultMaxOutDegree,
		WeightSum:    DefaultWeightSum,
	}
}

// Validate rejects zero values and a weight sum wider than the 32-bit
// routing value.
func (p Params) Validate() error {
	switch {
	case p.MaxHops <= 0:
		return fmt.Errorf("%w: MaxHops must be > 0", ErrInvalidParams)
	case p.NumNodes <= 0:
		return fmt.Errorf("%w: NumNodes must be > 0", ErrInvalidParams)
	case p.MaxOutDegree <= 0:
		return fmt.Errorf("%w: MaxOutDegree must be > 0", ErrInvalidParams)
	case p.WeightSum == 0 || p.WeightSum > DefaultWeightSum:
		return fmt.Errorf("%w: WeightSum must be in [1, 2^32]", ErrInvalidParams)
	}
	return nil
}
