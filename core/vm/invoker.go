package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/clydemeng/contractkit/abi"
)

// OutboundCall is a typed cross-contract call under construction. It is
// consumed exactly once; mutating and payable calls hold the caller
// frame's write capability until they return.
type OutboundCall struct {
	Target common.Address
	Kind   Mutability
	Input  []byte
	Value  *uint256.Int

	token *WriteToken
	spent bool
}

// NewStaticCall builds a read-only call. Any context may build one; no
// capability is required.
func NewStaticCall(target common.Address, sel abi.Selector, args ...abi.Value) (*OutboundCall, error) {
	input, err := abi.EncodeCall(sel, args...)
	if err != nil {
		return nil, err
	}
	return &OutboundCall{Target: target, Kind: View, Input: input}, nil
}

// NewCall builds a mutating call. The token must be a live claim on the
// caller frame's write capability; a view context has no way to obtain
// one, which is what keeps read-only paths from aliasing into writes.
func NewCall(token *WriteToken, target common.Address, sel abi.Selector, args ...abi.Value) (*OutboundCall, error) {
	if !token.valid() {
		return nil, Revert(KindMutabilityViolation, "mutating call requires a live write capability")
	}
	input, err := abi.EncodeCall(sel, args...)
	if err != nil {
		token.Release()
		return nil, err
	}
	return &OutboundCall{Target: target, Kind: Mutating, Input: input, token: token}, nil
}

// NewPayableCall builds a value-bearing call. Value is attached verbatim;
// the host debits it from the caller before dispatch.
func NewPayableCall(token *WriteToken, target common.Address, value *uint256.Int, sel abi.Selector, args ...abi.Value) (*OutboundCall, error) {
	c, err := NewCall(token, target, sel, args...)
	if err != nil {
		return nil, err
	}
	c.Kind = Payable
	if value != nil {
		c.Value = value.Clone()
	}
	return c, nil
}

// Invoke performs the call through the host, suspending the caller frame
// until the callee returns. On success it returns the callee's raw output
// for typed decoding; on revert it forwards the callee's structured error
// unmodified. The call is spent either way, and a held write token is
// returned to the caller frame when the call completes.
func (c *OutboundCall) Invoke(h Host, caller common.Address, callerDepth int) ([]byte, error) {
	if c.spent {
		return nil, Revert(KindCallFailed, "outbound call already consumed")
	}
	c.spent = true
	defer c.token.Release()

	kind := CallKindCall
	if c.Kind == View {
		kind = CallKindStaticCall
	}
	return h.Call(kind, caller, c.Target, c.Input, c.Value, callerDepth+1)
}
