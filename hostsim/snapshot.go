package hostsim

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/clydemeng/contractkit/core/vm"
	"github.com/clydemeng/contractkit/storage"
)

// State is a full capture of the simulated host's mutable record: sender,
// value, block facts, storage, balances and the event log. The mock table
// and the contract registry are harness configuration, not simulated
// state, and are not part of a snapshot.
type State struct {
	Sender    common.Address
	CallValue *uint256.Int
	Block     vm.BlockInfo
	Storage   map[common.Address]storage.MemStore
	Balances  map[common.Address]*uint256.Int
	Logs      []vm.Log
}

// Snapshot deep-copies the current simulated state.
func (h *Host) Snapshot() *State {
	s := &State{
		Sender:    h.sender,
		CallValue: h.callValue.Clone(),
		Block:     h.block,
		Storage:   make(map[common.Address]storage.MemStore, len(h.state)),
		Balances:  make(map[common.Address]*uint256.Int, len(h.balances)),
		Logs:      make([]vm.Log, len(h.logs)),
	}
	for addr, st := range h.state {
		s.Storage[addr] = st.Copy()
	}
	for addr, b := range h.balances {
		s.Balances[addr] = b.Clone()
	}
	copy(s.Logs, h.logs)
	return s
}

// Restore replaces the simulated state with a previously taken snapshot.
// The snapshot itself stays valid for further restores. Any in-flight
// checkpoints are meaningless across a restore, so the journal is cleared.
func (h *Host) Restore(s *State) {
	h.sender = s.Sender
	h.callValue = s.CallValue.Clone()
	h.block = s.Block
	h.state = make(map[common.Address]storage.MemStore, len(s.Storage))
	for addr, st := range s.Storage {
		h.state[addr] = st.Copy()
	}
	h.balances = make(map[common.Address]*uint256.Int, len(s.Balances))
	for addr, b := range s.Balances {
		h.balances[addr] = b.Clone()
	}
	h.logs = make([]vm.Log, len(s.Logs))
	copy(h.logs, s.Logs)
	h.journal.reset()
}

// Reset returns the host to its freshly constructed state: empty storage,
// balances, logs and mock table, block facts as configured at New. The
// contract registry and factories survive, they are structure rather than
// per-test state.
func (h *Host) Reset() {
	h.sender = common.Address{}
	h.callValue = new(uint256.Int)
	h.block = h.initial
	h.state = make(map[common.Address]storage.MemStore)
	h.balances = make(map[common.Address]*uint256.Int)
	h.logs = nil
	h.mocks = make(map[mockKey]mockResult)
	h.journal.reset()
}
