package core

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/clydemeng/contractkit/core/vm"
	"github.com/clydemeng/contractkit/storage"
)

// Frame is the per-invocation object handed to handlers. It implements
// storage.Store over the contract's own slots, guards writes by the
// frame's mutability, and is the only way a handler reaches the host.
//
// Frame effects are atomic at the host: the host checkpoints state before
// dispatching a frame and reverts the checkpoint if the frame fails, so a
// failing nested chain discards every frame's writes. A nested frame reads
// through to the outer frame's uncommitted writes; contracts that care
// about re-entrancy guard it themselves.
type Frame struct {
	host     vm.Host
	contract *Contract
	self     common.Address
	ctx      *vm.Context
	readOnly bool
}

// Ctx returns the frame's capability context.
func (f *Frame) Ctx() *vm.Context { return f.ctx }

// Self returns the storage address the frame executes against.
func (f *Frame) Self() common.Address { return f.self }

// Host exposes the underlying host for raw invocations.
func (f *Frame) Host() vm.Host { return f.host }

// Layout returns the executing contract's storage layout.
func (f *Frame) Layout() *storage.Layout { return f.contract.Layout() }

// GetState implements storage.Store.
func (f *Frame) GetState(key common.Hash) common.Hash {
	return f.host.GetState(f.self, key)
}

// SetState implements storage.Store. Writes are rejected on view frames
// and while the frame's write capability is lent to an outbound call.
func (f *Frame) SetState(key, value common.Hash) error {
	if f.readOnly {
		return vm.Revert(vm.KindMutabilityViolation, "write in view frame")
	}
	if !f.ctx.Mutable() {
		return vm.Revert(vm.KindMutabilityViolation, "write capability currently claimed")
	}
	return f.host.SetState(f.self, key, value)
}

// Emit appends an event to the host log. View frames cannot emit.
func (f *Frame) Emit(topics []common.Hash, data []byte) error {
	if f.readOnly {
		return vm.Revert(vm.KindMutabilityViolation, "log emission in view frame")
	}
	return f.host.EmitLog(vm.Log{Address: f.self, Topics: topics, Data: data})
}

// Call performs a typed outbound call built with the vm invoker, the
// caller frame suspending until the callee returns.
func (f *Frame) Call(call *vm.OutboundCall) ([]byte, error) {
	return call.Invoke(f.host, f.self, f.ctx.Depth())
}

// Balance reads an account balance from the host.
func (f *Frame) Balance(addr common.Address) *uint256.Int {
	return f.host.Balance(addr)
}

// Block describes the current block.
func (f *Frame) Block() vm.BlockInfo { return f.host.Block() }

// asRevert normalizes a handler error into the structured revert the
// dispatcher boundary returns: storage sentinels map to their kinds,
// RevertErrors pass through unmodified, anything else is tagged as a
// handler error rather than an opaque string.
func asRevert(err error) *vm.RevertError {
	if re := vm.AsRevert(err); re != nil {
		return re
	}
	switch {
	case errors.Is(err, storage.ErrOutOfBounds):
		return vm.Revert(vm.KindOutOfBounds, "%v", err)
	case errors.Is(err, storage.ErrValueRange):
		return vm.Revert(vm.KindValueRange, "%v", err)
	}
	return vm.Revert(vm.KindHandlerError, "%v", err)
}

func (e CallEnv) valueOrZero() *uint256.Int {
	if e.Value == nil {
		return new(uint256.Int)
	}
	return e.Value
}
