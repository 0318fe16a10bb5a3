package topology

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tchajed/marshal"
	"lukechampine.com/blake3"

	"github.com/zmlAEQ/zkbrownian/internal/group"
)

var ErrCommitmentMismatch = errors.New("weight commitment mismatch")

// Digest is a blake3 commitment to a matrix.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// WeightCommitment binds a verifier to one matrix. Verifiers call Open
// before using Matrix.
type WeightCommitment struct {
	Digest Digest        `json:"digest"`
	Matrix *WeightMatrix `json:"matrix"`
}

// Canonical encodes the matrix as row count, then per row the edge count
// followed by (to, weight) pairs, all as 8-byte integers.
func (m *WeightMatrix) Canonical() []byte {
	b := make([]byte, 0, 8+len(m.Rows)*8)
	b = marshal.WriteInt(b, uint64(len(m.Rows)))
	for _, row := range m.Rows {
		b = marshal.WriteInt(b, uint64(len(row)))
		for _, e := range row {
			b = marshal.WriteInt(b, uint64(e.To))
			b = marshal.WriteInt(b, e.Weight)
		}
	}
	return b
}

func digestOf(m *WeightMatrix) Digest {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(group.DSTTopology))
	_, _ = h.Write(m.Canonical())
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Commit returns the commitment to m.
func Commit(m *WeightMatrix) WeightCommitment {
	return WeightCommitment{Digest: digestOf(m), Matrix: m}
}

// Open recomputes the digest and returns the matrix when it matches.
func (c WeightCommitment) Open() (*WeightMatrix, error) {
	if c.Matrix == nil {
		return nil, fmt.Errorf("%w: no matrix", ErrCommitmentMismatch)
	}
	d := digestOf(c.Matrix)
	if !bytes.Equal(d[:], c.Digest[:]) {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrCommitmentMismatch, d, c.Digest)
	}
	return c.Matrix, nil
}

// LoadFile reads a JSON matrix such as the one written by brownian-keygen.
func LoadFile(path string) (*WeightMatrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m WeightMatrix
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopology, err)
	}
	return &m, nil
}

// WriteFile stores m as indented JSON.
func (m *WeightMatrix) WriteFile(path string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil || len(raw) != len(d) {
		return fmt.Errorf("%w: bad digest", ErrCommitmentMismatch)
	}
	copy(d[:], raw)
	return nil
}
