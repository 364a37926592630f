package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallKind identifies the low-level call operation carried to the host.
type CallKind uint8

const (
	// CallKindCall runs the target with its own storage; value allowed.
	CallKindCall CallKind = iota
	// CallKindStaticCall runs the target read-only; no value.
	CallKindStaticCall
	// CallKindDelegateCall runs the target's code against the caller's
	// storage; no value.
	CallKindDelegateCall
)

func (k CallKind) String() string {
	switch k {
	case CallKindCall:
		return "CALL"
	case CallKindStaticCall:
		return "STATICCALL"
	case CallKindDelegateCall:
		return "DELEGATECALL"
	}
	return "unknown"
}

// Log is one emitted event: indexed topics plus opaque data.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// BlockInfo is the host's view of the current block.
type BlockInfo struct {
	Number    uint64
	Timestamp uint64
	ChainID   uint64
}

// Host is the boundary between frames and the world, implemented by the
// simulation harness in tests and by a node binding in production.
//
// Contract: Call dispatches synchronously and returns only when the callee
// frame has fully returned. When Call (or Deploy) returns an error the
// host has already reverted every state effect of that frame, nested
// frames included, so a failing chain discards all of its writes unless a
// caller explicitly absorbs the error and retries. Hosts enforce the
// nesting depth limit and reject frames past it with a DepthExceeded
// revert.
//
// Static frames taint everything beneath them: while a CallKindStaticCall
// frame is live the host rejects writable calls, writes, log emission and
// deployment with a MutabilityViolation revert, and delegate calls inherit
// the read-only discipline. The typed invoker never builds such calls, but
// the host check holds even when a handler reaches the raw interface.
type Host interface {
	// GetState reads one storage word of addr; absent words are zero.
	GetState(addr common.Address, key common.Hash) common.Hash
	// SetState writes one storage word of addr.
	SetState(addr common.Address, key, value common.Hash) error

	// Call delivers input to target on behalf of caller. depth is the
	// callee frame's nesting depth. Value must be nil or zero unless kind
	// is CallKindCall.
	Call(kind CallKind, caller, target common.Address, input []byte, value *uint256.Int, depth int) ([]byte, error)

	// Deploy creates a contract at the deterministic salt/init-code
	// address and returns it.
	Deploy(caller common.Address, salt common.Hash, initCode []byte, value *uint256.Int, depth int) (common.Address, error)

	// Balance returns addr's tracked balance.
	Balance(addr common.Address) *uint256.Int

	// EmitLog appends one event to the host's log. Hosts reject emission
	// inside a read-only frame.
	EmitLog(l Log) error

	// Block describes the current block.
	Block() BlockInfo
}
