package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Raw invoker: untyped calls for callers that manage their own encoding.
// Failures surface as CallFailed reverts carrying the callee's raw revert
// bytes; decoding them is the caller's concern.

// RawCall delivers payload to target with optional attached value.
func RawCall(h Host, caller, target common.Address, payload []byte, value *uint256.Int, depth int) ([]byte, error) {
	return rawDispatch(h, CallKindCall, caller, target, payload, value, depth)
}

// RawStaticCall delivers payload on the read-only path. No value by
// construction.
func RawStaticCall(h Host, caller, target common.Address, payload []byte, depth int) ([]byte, error) {
	return rawDispatch(h, CallKindStaticCall, caller, target, payload, nil, depth)
}

// RawDelegateCall runs target's code against the caller's own storage. No
// value by construction.
func RawDelegateCall(h Host, caller, target common.Address, payload []byte, depth int) ([]byte, error) {
	return rawDispatch(h, CallKindDelegateCall, caller, target, payload, nil, depth)
}

func rawDispatch(h Host, kind CallKind, caller, target common.Address, payload []byte, value *uint256.Int, depth int) ([]byte, error) {
	out, err := h.Call(kind, caller, target, payload, value, depth+1)
	if err != nil {
		if re := AsRevert(err); re != nil {
			return nil, RevertWithData(KindCallFailed, re.Error(), re.Encode())
		}
		return nil, RevertWithData(KindCallFailed, err.Error(), nil)
	}
	return out, nil
}

// Create2Address computes the deterministic deployment address from the
// deployer, a salt and the init-code hash.
func Create2Address(deployer common.Address, salt common.Hash, initCodeHash common.Hash) common.Address {
	return crypto.CreateAddress2(deployer, salt, initCodeHash.Bytes())
}

// Deploy performs a deterministic deployment through the host and returns
// the created address.
func Deploy(h Host, caller common.Address, salt common.Hash, initCode []byte, value *uint256.Int, depth int) (common.Address, error) {
	addr, err := h.Deploy(caller, salt, initCode, value, depth+1)
	if err != nil {
		if re := AsRevert(err); re != nil {
			return common.Address{}, RevertWithData(KindCallFailed, re.Error(), re.Encode())
		}
		return common.Address{}, RevertWithData(KindCallFailed, err.Error(), nil)
	}
	return addr, nil
}
