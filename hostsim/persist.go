package hostsim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Committed state persists into the configured storage.Backend under
// fixed-width keys: 's' ++ address ++ slot for storage words, 'b' ++
// address for balances. External tools recompute slot addresses from the
// same declaration order and packing rule the allocator uses, so this is
// the whole on-disk contract.

const (
	prefixStorage = 's'
	prefixBalance = 'b'
)

func storageKey(addr common.Address, slot common.Hash) []byte {
	k := make([]byte, 1+common.AddressLength+common.HashLength)
	k[0] = prefixStorage
	copy(k[1:], addr.Bytes())
	copy(k[1+common.AddressLength:], slot.Bytes())
	return k
}

func balanceKey(addr common.Address) []byte {
	k := make([]byte, 1+common.AddressLength)
	k[0] = prefixBalance
	copy(k[1:], addr.Bytes())
	return k
}

// Commit flushes current storage and balances to the attached backend.
func (h *Host) Commit() error {
	if h.backend == nil {
		return fmt.Errorf("hostsim: no backend attached")
	}
	for addr, store := range h.state {
		for slot, word := range store {
			if err := h.backend.Put(storageKey(addr, slot), word.Bytes()); err != nil {
				return err
			}
		}
	}
	for addr, bal := range h.balances {
		b := bal.Bytes32()
		if err := h.backend.Put(balanceKey(addr), b[:]); err != nil {
			return err
		}
	}
	h.lg.Debug("state committed", "accounts", len(h.state))
	return nil
}

// load pulls previously committed state back in at construction.
func (h *Host) load() error {
	keys, err := h.backend.Keys(nil)
	if err != nil {
		return err
	}
	for _, k := range keys {
		v, ok, err := h.backend.Get(k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch {
		case k[0] == prefixStorage && len(k) == 1+common.AddressLength+common.HashLength:
			addr := common.BytesToAddress(k[1 : 1+common.AddressLength])
			slot := common.BytesToHash(k[1+common.AddressLength:])
			if err := h.stateOf(addr).SetState(slot, common.BytesToHash(v)); err != nil {
				return err
			}
		case k[0] == prefixBalance && len(k) == 1+common.AddressLength:
			addr := common.BytesToAddress(k[1:])
			h.balances[addr] = new(uint256.Int).SetBytes(v)
		}
	}
	return nil
}
