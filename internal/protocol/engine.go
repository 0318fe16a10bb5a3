// Package protocol implements the relay state machine: Spawn creates a
// message, Forward extends it by one attested hop and Verify replays the
// public statements of every hop.
//
// All three are synchronous and pure over their inputs; an Engine holds no
// mutable state and may be shared across goroutines.
package protocol

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/zmlAEQ/zkbrownian/internal/attest"
	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/params"
	"github.com/zmlAEQ/zkbrownian/internal/prf"
	"github.com/zmlAEQ/zkbrownian/internal/topology"
)

type Engine struct {
	params   params.Params
	prover   attest.Prover
	verifier attest.Verifier
	rnd      io.Reader
}

type Option func(*Engine)

// WithRand sets the source of fresh diversifiers.
func WithRand(r io.Reader) Option { return func(e *Engine) { e.rnd = r } }

// WithVerifier checks with a different backend than the one proving.
func WithVerifier(v attest.Verifier) Option { return func(e *Engine) { e.verifier = v } }

func New(p params.Params, b attest.Backend, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("protocol: nil backend")
	}
	e := &Engine{params: p, prover: b, verifier: b, rnd: rand.Reader}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Params() params.Params { return e.params }

// Spawn creates a packet addressed to the sender itself. The diversifier
// is Hash(pid, sid), so ppk0 is reproducible for the same (pk, pid, sid).
func (e *Engine) Spawn(sk keys.SecretKey, pk keys.PublicKey, pid uint32, sid uint64, all []keys.PublicKey) (*Message, error) {
	d, err := prf.SpawnDiversifier(pid, sid)
	if err != nil {
		return nil, err
	}
	ppk0 := keys.DiversifyWith(pk, d)
	idx := keys.Index(all, pk)
	if idx < 0 {
		return nil, fmt.Errorf("%w: spawner key not in key set", ErrInvalidProof)
	}
	st := attest.Spawn{Ctx: attest.Context{PID: pid, SID: sid}, Keys: all, PPK0: ppk0, D: d}
	pi0, err := e.prover.Prove(st, attest.SpawnWitness{Index: idx, X: sk.Scalar()})
	if err != nil {
		return nil, fmt.Errorf("%w: spawn: %v", ErrInvalidProof, err)
	}
	return &Message{PID: pid, SID: sid, PPK0: ppk0, Pi0: pi0}, nil
}

// Forward appends one hop chosen by the caller's PRF output over the
// caller's own row of tm. It returns the extended message, the receiver's
// index in all and the fresh diversifier used to address it.
func (e *Engine) Forward(pk keys.PublicKey, sk keys.SecretKey, msg *Message, tm *topology.WeightMatrix, all []keys.PublicKey) (*Message, int, keys.Diversifier, error) {
	var none keys.Diversifier
	if msg == nil || tm == nil {
		return nil, 0, none, fmt.Errorf("%w: nil message or topology", ErrInvalidWeightSelection)
	}
	nu := msg.HopCount()
	if nu >= e.params.MaxHops {
		return nil, 0, none, fmt.Errorf("%w: hop count %d, max %d", ErrMaxHopsExceeded, nu, e.params.MaxHops)
	}
	current := keys.Index(all, pk)
	if current < 0 {
		return nil, 0, none, fmt.Errorf("%w: forwarder key not in key set", ErrInvalidWeightSelection)
	}

	theta, err := prf.DeriveTheta(msg.LatestPhi(), msg.SID, msg.PID, uint64(nu))
	if err != nil {
		return nil, 0, none, err
	}
	phi, err := prf.ComputePRF(theta, sk)
	if err != nil {
		return nil, 0, none, err
	}
	rho := e.routing(phi)
	idx, receiverPK, err := topology.SelectNextHop(rho, tm, current, all)
	if err != nil {
		return nil, 0, none, err
	}
	next, y, err := keys.Diversify(receiverPK, e.rnd)
	if err != nil {
		return nil, 0, none, err
	}

	cands := candidates(tm, rho, len(all))
	pos := -1
	for i, c := range cands {
		if c.Sender == current {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, 0, none, fmt.Errorf("%w: forwarder row not routable", ErrInvalidWeightSelection)
	}

	ctx := attest.Context{PID: msg.PID, SID: msg.SID, Hop: uint64(nu)}
	st := hopStatements(ctx, all, msg.LatestPPK(), next, phi, theta, rho, cands)
	x := sk.Scalar()
	w := attest.HopWitnesses{
		Sender:   attest.SenderWitness{Index: current, X: x},
		Weight:   attest.WeightWitness{Candidate: pos, X: x, Y: y},
		Receiver: attest.ReceiverWitness{Index: idx, Y: y},
		Bridge:   attest.BridgeWitness{X: x},
		KeyOps:   attest.KeyOpsWitness{X: x, Y: y},
	}
	pf, err := attest.ProveHop(e.prover, st, w)
	if err != nil {
		return nil, 0, none, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return msg.extend(Hop{PPK: next, Phi: phi, Proof: pf}), idx, y, nil
}

// Verify checks π0 and then every hop in order, stopping at the first
// failure. A wrong hop count or a failed proof is a false result; errors
// mean the check could not be carried out, such as a commitment that does
// not open or a backend that cannot evaluate a statement.
func (e *Engine) Verify(msg *Message, expected int, wc topology.WeightCommitment, all []keys.PublicKey) (bool, error) {
	if msg == nil {
		return false, fmt.Errorf("%w: nil message", ErrSerialization)
	}
	if msg.HopCount() != expected || msg.HopCount() > e.params.MaxHops {
		return false, nil
	}
	tm, err := wc.Open()
	if err != nil {
		return false, err
	}

	d, err := prf.SpawnDiversifier(msg.PID, msg.SID)
	if err != nil {
		return false, err
	}
	spawn := attest.Spawn{Ctx: attest.Context{PID: msg.PID, SID: msg.SID}, Keys: all, PPK0: msg.PPK0, D: d}
	ok, err := e.verifier.Check(spawn, msg.Pi0)
	if err != nil || !ok {
		return false, err
	}

	for i, h := range msg.Hops {
		theta, err := prf.DeriveTheta(msg.prevPhi(i), msg.SID, msg.PID, uint64(i))
		if err != nil {
			return false, err
		}
		rho := e.routing(h.Phi)
		ctx := attest.Context{PID: msg.PID, SID: msg.SID, Hop: uint64(i)}
		st := hopStatements(ctx, all, msg.prevPPK(i), h.PPK, h.Phi, theta, rho, candidates(tm, rho, len(all)))
		ok, err := attest.CheckHop(e.verifier, st, h.Proof)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (e *Engine) routing(phi group.G1) uint32 {
	return prf.ReduceRouting(prf.ExtractRoutingValue(phi), e.params.WeightSum)
}
