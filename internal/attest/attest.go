// Package attest is the proof boundary of the relay protocol. It fixes the
// public statements a hop must satisfy and the Prover/Verifier capability a
// backend implements; the protocol never looks inside proof bytes.
package attest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

var (
	ErrUnsupported     = errors.New("attest: unsupported statement")
	ErrWitnessMismatch = errors.New("attest: witness does not match statement")
	ErrUnknownBackend  = errors.New("attest: unknown backend")
)

type Kind string

const (
	KindSpawn              Kind = "spawn"
	KindSenderMembership   Kind = "sender_membership"
	KindWeightSelection    Kind = "weight_selection"
	KindReceiverMembership Kind = "receiver_membership"
	KindBridge             Kind = "bridge"
	KindKeyOps             Kind = "key_ops"
)

// Context binds a proof to one message and hop index.
type Context struct {
	PID uint32
	SID uint64
	Hop uint64
}

// Label is the transcript prefix for a statement of kind k.
func (c Context) Label(k Kind) []byte {
	b := make([]byte, 0, 32+len(k))
	b = append(b, "zkb/"...)
	b = append(b, k...)
	b = binary.BigEndian.AppendUint32(b, c.PID)
	b = binary.BigEndian.AppendUint64(b, c.SID)
	return binary.BigEndian.AppendUint64(b, c.Hop)
}

type Statement interface{ Kind() Kind }

type Witness interface{ Kind() Kind }

type Prover interface {
	Prove(st Statement, w Witness) ([]byte, error)
}

// Verifier returns false for a well-formed statement whose proof does not
// verify, including malformed proof bytes. Errors are reserved for
// statements the backend cannot evaluate.
type Verifier interface {
	Check(st Statement, proof []byte) (bool, error)
}

type Backend interface {
	Name() string
	Prover
	Verifier
}

var (
	regMu    sync.RWMutex
	backends = map[string]Backend{}
)

// Register makes a backend available by name. Registering a name twice
// replaces the earlier backend.
func Register(b Backend) {
	regMu.Lock()
	backends[b.Name()] = b
	regMu.Unlock()
}

func Lookup(name string) (Backend, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Names lists registered backends in sorted order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(backends))
	for n := range backends {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Spawn: ppk0₂ = G2^D and, for some j, pk_j = G2^x ∧ ppk0₁ = ppk0₂^x.
type Spawn struct {
	Ctx  Context
	Keys []keys.PublicKey
	PPK0 keys.DiversifiedPublicKey
	D    group.Scalar
}

type SpawnWitness struct {
	Index int
	X     group.Scalar
}

// SenderMembership (π₁): for some j, pk_j = G2^x ∧ prev₁ = prev₂^x.
type SenderMembership struct {
	Ctx  Context
	Keys []keys.PublicKey
	Prev keys.DiversifiedPublicKey
}

type SenderWitness struct {
	Index int
	X     group.Scalar
}

// Candidate is the bucket [Lower, Upper) of Sender's row that contains ρ,
// and the neighbour it routes to.
type Candidate struct {
	Sender   int
	Receiver int
	Lower    uint64
	Upper    uint64
}

// WeightSelection (π₂): every candidate bounds ρ and, for some candidate s,
// pk_s = G2^x ∧ prev₁ = prev₂^x ∧ next₁ = pk_{r_s}^y ∧ next₂ = G2^y.
type WeightSelection struct {
	Ctx        Context
	Keys       []keys.PublicKey
	Prev       keys.DiversifiedPublicKey
	Next       keys.DiversifiedPublicKey
	Rho        uint32
	Candidates []Candidate
}

// WeightWitness names the true candidate by position in Candidates.
type WeightWitness struct {
	Candidate int
	X         group.Scalar
	Y         group.Scalar
}

// ReceiverMembership (π₃): for some j, next₁ = pk_j^y ∧ next₂ = G2^y.
type ReceiverMembership struct {
	Ctx  Context
	Keys []keys.PublicKey
	Next keys.DiversifiedPublicKey
}

type ReceiverWitness struct {
	Index int
	Y     group.Scalar
}

// Bridge (π₄,G1): prev₁ = prev₂^x ∧ Target = φ^x, with Target = G1·φ^{-θ}.
type Bridge struct {
	Ctx    Context
	Prev   keys.DiversifiedPublicKey
	Phi    group.G1
	Target group.G1
}

type BridgeWitness struct {
	X group.Scalar
}

// KeyOps (π₄,G2): prev₁ = prev₂^x ∧ next₂ = G2^y, and φ is not the identity.
type KeyOps struct {
	Ctx  Context
	Prev keys.DiversifiedPublicKey
	Next keys.DiversifiedPublicKey
	Phi  group.G1
}

type KeyOpsWitness struct {
	X group.Scalar
	Y group.Scalar
}

func (Spawn) Kind() Kind              { return KindSpawn }
func (SpawnWitness) Kind() Kind       { return KindSpawn }
func (SenderMembership) Kind() Kind   { return KindSenderMembership }
func (SenderWitness) Kind() Kind      { return KindSenderMembership }
func (WeightSelection) Kind() Kind    { return KindWeightSelection }
func (WeightWitness) Kind() Kind      { return KindWeightSelection }
func (ReceiverMembership) Kind() Kind { return KindReceiverMembership }
func (ReceiverWitness) Kind() Kind    { return KindReceiverMembership }
func (Bridge) Kind() Kind             { return KindBridge }
func (BridgeWitness) Kind() Kind      { return KindBridge }
func (KeyOps) Kind() Kind             { return KindKeyOps }
func (KeyOpsWitness) Kind() Kind      { return KindKeyOps }
