// Package topology is the per-epoch weighted adjacency that turns a routing
// value into a next hop.
//
// Each node's neighbour list partitions [0, WeightSum) into contiguous
// half-open buckets in insertion order; bucket i is
// [sum(w_0..w_{i-1}), sum(w_0..w_i)). All arithmetic is on exact unsigned
// integers.
package topology

import (
	"errors"
	"fmt"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

var (
	ErrInvalidWeightSelection = errors.New("invalid weight selection")
	ErrInvalidTopology        = errors.New("invalid topology")
)

// Edge is one outgoing neighbour and its weight.
type Edge struct {
	To     int    `json:"to"`
	Weight uint64 `json:"weight"`
}

// WeightMatrix holds one ordered neighbour list per node. The order is
// significant and must not change within an epoch.
type WeightMatrix struct {
	Rows [][]Edge `json:"rows"`
}

// New returns an n-node matrix with no edges.
func New(n int) *WeightMatrix {
	if n < 0 {
		n = 0
	}
	return &WeightMatrix{Rows: make([][]Edge, n)}
}

// Uniform connects every node to every other node with weight
// ⌊total/(n-1)⌋, giving the remainder one unit at a time to the first
// neighbours in list order. For n <= 1 every row is empty.
func Uniform(n int, total uint64) *WeightMatrix {
	m := New(n)
	if n <= 1 {
		return m
	}
	deg := uint64(n - 1)
	base, rem := total/deg, total%deg
	for i := 0; i < n; i++ {
		row := make([]Edge, 0, n-1)
		k := uint64(0)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			w := base
			if k < rem {
				w++
			}
			row = append(row, Edge{To: j, Weight: w})
			k++
		}
		m.Rows[i] = row
	}
	return m
}

func (m *WeightMatrix) NumNodes() int { return len(m.Rows) }

// AddEdge appends to -> weight at the end of from's neighbour list.
func (m *WeightMatrix) AddEdge(from, to int, weight uint64) error {
	if from < 0 || from >= len(m.Rows) {
		return fmt.Errorf("%w: node %d out of range", ErrInvalidTopology, from)
	}
	m.Rows[from] = append(m.Rows[from], Edge{To: to, Weight: weight})
	return nil
}

// Weights returns node's neighbour list, or nil when node is out of range.
func (m *WeightMatrix) Weights(node int) []Edge {
	if node < 0 || node >= len(m.Rows) {
		return nil
	}
	return m.Rows[node]
}

// Bucket returns the half-open interval [lo, hi) owned by the pos-th
// neighbour of node.
func (m *WeightMatrix) Bucket(node, pos int) (lo, hi uint64, ok bool) {
	row := m.Weights(node)
	if pos < 0 || pos >= len(row) {
		return 0, 0, false
	}
	for i := 0; i < pos; i++ {
		lo += row[i].Weight
	}
	return lo, lo + row[pos].Weight, true
}

// Validate checks that every row sums to weightSum exactly, has at most
// maxOutDegree entries with non-zero weights, and points at existing nodes.
func (m *WeightMatrix) Validate(weightSum uint64, maxOutDegree int) error {
	n := len(m.Rows)
	for i, row := range m.Rows {
		if len(row) == 0 && n <= 1 {
			continue
		}
		if maxOutDegree > 0 && len(row) > maxOutDegree {
			return fmt.Errorf("%w: node %d has %d neighbours, max %d", ErrInvalidTopology, i, len(row), maxOutDegree)
		}
		var sum uint64
		for _, e := range row {
			if e.To < 0 || e.To >= n {
				return fmt.Errorf("%w: node %d points at %d", ErrInvalidTopology, i, e.To)
			}
			if e.Weight == 0 {
				return fmt.Errorf("%w: node %d has a zero weight edge", ErrInvalidTopology, i)
			}
			sum += e.Weight
		}
		if sum != weightSum {
			return fmt.Errorf("%w: node %d weights sum to %d, want %d", ErrInvalidTopology, i, sum, weightSum)
		}
	}
	return nil
}

// Selection is the resolved bucket for one routing value.
type Selection struct {
	Pos   int
	To    int
	Lower uint64
	Upper uint64
}

// Select finds the bucket of current's row that contains rho.
func (m *WeightMatrix) Select(rho uint32, current int) (Selection, error) {
	row := m.Weights(current)
	if len(row) == 0 {
		return Selection{}, fmt.Errorf("%w: node %d has no neighbours", ErrInvalidWeightSelection, current)
	}
	r := uint64(rho)
	var lo uint64
	for i, e := range row {
		hi := lo + e.Weight
		if r < hi {
			return Selection{Pos: i, To: e.To, Lower: lo, Upper: hi}, nil
		}
		lo = hi
	}
	return Selection{}, fmt.Errorf("%w: rho %d outside [0,%d) for node %d", ErrInvalidWeightSelection, rho, lo, current)
}

// SelectNextHop resolves rho against the caller's row and returns the
// chosen neighbour's index and public key.
func SelectNextHop(rho uint32, m *WeightMatrix, current int, all []keys.PublicKey) (int, keys.PublicKey, error) {
	sel, err := m.Select(rho, current)
	if err != nil {
		return 0, keys.PublicKey{}, err
	}
	if sel.To < 0 || sel.To >= len(all) {
		return 0, keys.PublicKey{}, fmt.Errorf("%w: neighbour %d outside key set of %d", ErrInvalidWeightSelection, sel.To, len(all))
	}
	return sel.To, all[sel.To], nil
}
