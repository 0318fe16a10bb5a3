package protocol

import (
	"errors"

	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/topology"
)

// Errors are terminal for the call that returns them; nothing is retried.
var (
	// ErrMaxHopsExceeded: Forward on a message already at its hop ceiling.
	ErrMaxHopsExceeded = errors.New("max hops exceeded")
	// ErrInvalidProof: an attestation could not be produced or failed to verify.
	ErrInvalidProof = errors.New("invalid proof")
	// ErrInvalidWeightSelection: topology misconfiguration or an out of range
	// routing result.
	ErrInvalidWeightSelection = topology.ErrInvalidWeightSelection
	// ErrSerialization: malformed wire bytes.
	ErrSerialization = errors.New("serialization error")
	// ErrCrypto: a field or group operation failed.
	ErrCrypto = group.ErrCrypto
)
