package hostsim

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// The journal records every state effect of in-flight frames so a failing
// frame can be rolled back to its checkpoint. Entries are reverted in
// reverse order.
type journalEntry interface {
	revert(h *Host)
}

type journal struct {
	entries []journalEntry
}

func (j *journal) append(e journalEntry) { j.entries = append(j.entries, e) }

func (j *journal) checkpoint() int { return len(j.entries) }

func (j *journal) revertTo(h *Host, cp int) {
	for i := len(j.entries) - 1; i >= cp; i-- {
		j.entries[i].revert(h)
	}
	j.entries = j.entries[:cp]
}

func (j *journal) reset() { j.entries = j.entries[:0] }

// storageChange remembers a slot's previous word.
type storageChange struct {
	addr common.Address
	key  common.Hash
	prev common.Hash
}

func (c storageChange) revert(h *Host) {
	_ = h.stateOf(c.addr).SetState(c.key, c.prev)
}

// balanceChange remembers an account's previous balance.
type balanceChange struct {
	addr common.Address
	prev *uint256.Int
}

func (c balanceChange) revert(h *Host) {
	h.balances[c.addr] = c.prev.Clone()
}

// logAppend marks one emitted event; revert pops it.
type logAppend struct{}

func (logAppend) revert(h *Host) {
	h.logs = h.logs[:len(h.logs)-1]
}

// contractCreated marks a deployment; revert unregisters it.
type contractCreated struct {
	addr common.Address
}

func (c contractCreated) revert(h *Host) {
	delete(h.contracts, c.addr)
}
