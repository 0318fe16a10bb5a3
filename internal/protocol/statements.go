package protocol

import (
	"github.com/zmlAEQ/zkbrownian/internal/attest"
	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/prf"
	"github.com/zmlAEQ/zkbrownian/internal/topology"
)

// candidates resolves rho against every sender row. The forwarder is one
// of them; the selection proof hides which.
func candidates(tm *topology.WeightMatrix, rho uint32, n int) []attest.Candidate {
	if tm.NumNodes() < n {
		n = tm.NumNodes()
	}
	out := make([]attest.Candidate, 0, n)
	for s := 0; s < n; s++ {
		sel, err := tm.Select(rho, s)
		if err != nil || sel.To < 0 || sel.To >= n {
			continue
		}
		out = append(out, attest.Candidate{Sender: s, Receiver: sel.To, Lower: sel.Lower, Upper: sel.Upper})
	}
	return out
}

// hopStatements is the public view of one Forward step. Forward and Verify
// build it the same way.
func hopStatements(ctx attest.Context, all []keys.PublicKey, prev, next keys.DiversifiedPublicKey, phi group.G1, theta group.Scalar, rho uint32, cands []attest.Candidate) attest.HopStatements {
	return attest.HopStatements{
		Sender:   attest.SenderMembership{Ctx: ctx, Keys: all, Prev: prev},
		Weight:   attest.WeightSelection{Ctx: ctx, Keys: all, Prev: prev, Next: next, Rho: rho, Candidates: cands},
		Receiver: attest.ReceiverMembership{Ctx: ctx, Keys: all, Next: next},
		Bridge:   attest.Bridge{Ctx: ctx, Prev: prev, Phi: phi, Target: prf.BridgeTarget(phi, theta)},
		KeyOps:   attest.KeyOps{Ctx: ctx, Prev: prev, Next: next, Phi: phi},
	}
}
