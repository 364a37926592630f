// Package hostsim is the in-process simulated host: configurable sender,
// value and block facts, tracked balances, a mock table for outbound
// calls, an append-only event log, and frame-atomic state with snapshots.
//
// A Host is per-test state. It mirrors the single-threaded execution model
// it emulates: one Host must never be shared by concurrent transactions,
// while independent Host instances are free to run in parallel.
package hostsim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	log "github.com/inconshreveable/log15"

	"github.com/clydemeng/contractkit/core"
	"github.com/clydemeng/contractkit/core/vm"
	"github.com/clydemeng/contractkit/storage"
	"github.com/clydemeng/contractkit/tracing"
)

// DefaultMaxDepth bounds call nesting unless WithMaxDepth overrides it.
const DefaultMaxDepth = 64

// Factory instantiates a contract for a deterministic deployment of the
// init code it was registered under.
type Factory func(addr common.Address) (*core.Contract, error)

type mockKey struct {
	target  common.Address
	payload string // exact input bytes
}

type mockResult struct {
	ret []byte
	err *vm.RevertError
}

// Host implements vm.Host against purely in-memory state.
type Host struct {
	sender    common.Address
	callValue *uint256.Int
	block     vm.BlockInfo

	state     map[common.Address]storage.MemStore
	balances  map[common.Address]*uint256.Int
	logs      []vm.Log
	mocks     map[mockKey]mockResult
	contracts map[common.Address]*core.Contract
	factories map[common.Hash]Factory

	journal       journal
	staticNesting int // live read-only frames; writes are refused while nonzero
	maxDepth      int
	backend       storage.Backend
	lg            log.Logger

	initial vm.BlockInfo // Reset target
}

var _ vm.Host = (*Host)(nil)

// Option configures a Host at construction.
type Option func(*Host)

// WithMaxDepth overrides the call nesting limit.
func WithMaxDepth(n int) Option { return func(h *Host) { h.maxDepth = n } }

// WithChainID sets the simulated chain id.
func WithChainID(id uint64) Option { return func(h *Host) { h.block.ChainID = id } }

// WithBlock sets the initial block number and timestamp.
func WithBlock(number, timestamp uint64) Option {
	return func(h *Host) {
		h.block.Number = number
		h.block.Timestamp = timestamp
	}
}

// WithBackend attaches a committed-state backend; Commit flushes to it and
// construction loads whatever it already holds.
func WithBackend(b storage.Backend) Option { return func(h *Host) { h.backend = b } }

// WithLogger replaces the default log15 logger.
func WithLogger(lg log.Logger) Option { return func(h *Host) { h.lg = lg } }

// New constructs a fresh simulated host. With a backend attached,
// previously committed state is loaded back in; a backend that cannot be
// read fails construction rather than yielding a half-loaded world.
func New(opts ...Option) (*Host, error) {
	h := &Host{
		callValue: new(uint256.Int),
		state:     make(map[common.Address]storage.MemStore),
		balances:  make(map[common.Address]*uint256.Int),
		mocks:     make(map[mockKey]mockResult),
		contracts: make(map[common.Address]*core.Contract),
		factories: make(map[common.Hash]Factory),
		maxDepth:  DefaultMaxDepth,
		block:     vm.BlockInfo{Number: 1, Timestamp: 1, ChainID: 1},
		lg:        log.New("module", "hostsim"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.initial = h.block
	if h.backend != nil {
		if err := h.load(); err != nil {
			return nil, fmt.Errorf("hostsim: load persisted state: %w", err)
		}
	}
	return h, nil
}

// ---------------------------------------------------------------------------
// Harness configuration surface
// ---------------------------------------------------------------------------

// SetSender sets the sender observed by subsequent top-level calls.
func (h *Host) SetSender(a common.Address) { h.sender = a }

// Sender returns the configured sender.
func (h *Host) Sender() common.Address { return h.sender }

// SetCallValue sets the value Transact attaches to subsequent calls.
func (h *Host) SetCallValue(v *uint256.Int) {
	if v == nil {
		v = new(uint256.Int)
	}
	h.callValue = v.Clone()
}

// SetBlock sets both block facts at once.
func (h *Host) SetBlock(number, timestamp uint64) {
	h.block.Number = number
	h.block.Timestamp = timestamp
}

// Warp advances the block timestamp.
func (h *Host) Warp(timestamp uint64) { h.block.Timestamp = timestamp }

// Roll advances the block number.
func (h *Host) Roll(number uint64) { h.block.Number = number }

// SetBalance configures an account balance directly.
func (h *Host) SetBalance(addr common.Address, v *uint256.Int) {
	h.balances[addr] = v.Clone()
	h.lg.Debug("balance set", "addr", addr, "value", v,
		"reason", tracing.BalanceChangeHarnessSet)
}

// Register adds a contract to the dispatch registry. An address can hold
// only one contract.
func (h *Host) Register(c *core.Contract) error {
	if _, dup := h.contracts[c.Address()]; dup {
		return fmt.Errorf("hostsim: contract already registered at %s", c.Address())
	}
	h.contracts[c.Address()] = c
	return nil
}

// RegisterInitCode binds init code to a factory so deterministic
// deployments of that code can be simulated.
func (h *Host) RegisterInitCode(initCode []byte, f Factory) {
	h.factories[crypto.Keccak256Hash(initCode)] = f
}

// MockCall programs the mock table: any call to target with exactly this
// payload returns ret without touching a registered contract.
func (h *Host) MockCall(target common.Address, payload, ret []byte) {
	h.mocks[mockKey{target, string(payload)}] = mockResult{ret: append([]byte(nil), ret...)}
}

// MockRevert programs a structured failure for (target, payload).
func (h *Host) MockRevert(target common.Address, payload []byte, err *vm.RevertError) {
	h.mocks[mockKey{target, string(payload)}] = mockResult{err: err}
}

// ClearMocks empties the mock table.
func (h *Host) ClearMocks() { h.mocks = make(map[mockKey]mockResult) }

// Logs returns a copy of the emitted events, in emission order.
func (h *Host) Logs() []vm.Log {
	out := make([]vm.Log, len(h.logs))
	copy(out, h.logs)
	return out
}

// ---------------------------------------------------------------------------
// Top-level entry points
// ---------------------------------------------------------------------------

// Transact invokes target on the writable path with the configured sender
// and call value. A failing call leaves no state behind.
func (h *Host) Transact(target common.Address, input []byte) ([]byte, error) {
	return h.Call(vm.CallKindCall, h.sender, target, input, h.callValue, 0)
}

// Query invokes target on the read-only path. No value is attached.
func (h *Host) Query(target common.Address, input []byte) ([]byte, error) {
	return h.Call(vm.CallKindStaticCall, h.sender, target, input, nil, 0)
}

// ---------------------------------------------------------------------------
// vm.Host implementation
// ---------------------------------------------------------------------------

func (h *Host) stateOf(addr common.Address) storage.MemStore {
	s, ok := h.state[addr]
	if !ok {
		s = storage.NewMemStore()
		h.state[addr] = s
	}
	return s
}

func (h *Host) GetState(addr common.Address, key common.Hash) common.Hash {
	return h.stateOf(addr).GetState(key)
}

func (h *Host) SetState(addr common.Address, key, value common.Hash) error {
	if h.staticNesting > 0 {
		return vm.Revert(vm.KindMutabilityViolation, "state write inside a read-only frame")
	}
	s := h.stateOf(addr)
	h.journal.append(storageChange{addr: addr, key: key, prev: s.GetState(key)})
	return s.SetState(key, value)
}

func (h *Host) Balance(addr common.Address) *uint256.Int {
	if b, ok := h.balances[addr]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

func (h *Host) EmitLog(l vm.Log) error {
	if h.staticNesting > 0 {
		return vm.Revert(vm.KindMutabilityViolation, "log emission inside a read-only frame")
	}
	h.journal.append(logAppend{})
	h.logs = append(h.logs, l)
	return nil
}

func (h *Host) Block() vm.BlockInfo { return h.block }

// Call implements the host side of dispatch. The mock table is consulted
// before anything else; a match short-circuits real dispatch entirely,
// balance movement included.
func (h *Host) Call(kind vm.CallKind, caller, target common.Address, input []byte, value *uint256.Int, depth int) ([]byte, error) {
	if m, ok := h.mocks[mockKey{target, string(input)}]; ok {
		mockHitCounter.Inc(1)
		h.lg.Debug("mocked call", "target", target, "len", len(input))
		if m.err != nil {
			return nil, m.err
		}
		return append([]byte(nil), m.ret...), nil
	}
	if depth > h.maxDepth {
		revertCounter.Inc(1)
		return nil, vm.Revert(vm.KindDepthExceeded, "call depth %d exceeds limit %d", depth, h.maxDepth)
	}
	if value != nil && !value.IsZero() && kind != vm.CallKindCall {
		return nil, vm.Revert(vm.KindMutabilityViolation, "value attached to %s", kind)
	}
	if h.staticNesting > 0 && kind == vm.CallKindCall {
		revertCounter.Inc(1)
		return nil, vm.Revert(vm.KindMutabilityViolation, "writable call inside a read-only frame")
	}
	// Delegate calls launched under a live static frame inherit its
	// read-only discipline.
	static := kind == vm.CallKindStaticCall || h.staticNesting > 0

	callCounter.Inc(1)
	cp := h.journal.checkpoint()
	if static {
		h.staticNesting++
	}
	out, err := h.runFrame(kind, static, caller, target, input, value, depth)
	if static {
		h.staticNesting--
	}
	if err != nil {
		revertCounter.Inc(1)
		h.journal.revertTo(h, cp)
		h.lg.Debug("frame reverted", "target", target, "depth", depth, "err", err)
		return nil, err
	}
	return out, nil
}

func (h *Host) runFrame(kind vm.CallKind, static bool, caller, target common.Address, input []byte, value *uint256.Int, depth int) ([]byte, error) {
	// Value is debited from the caller before the callee runs.
	if value != nil && !value.IsZero() {
		if err := h.transfer(caller, target, value, tracing.BalanceChangeCallValue); err != nil {
			return nil, err
		}
	}

	c, ok := h.contracts[target]
	if !ok {
		// Plain transfer to an address without code succeeds with an
		// empty return, matching what a live chain does.
		return nil, nil
	}

	self := target
	if kind == vm.CallKindDelegateCall {
		self = caller
	}
	env := core.CallEnv{
		Sender: caller,
		Value:  value,
		Input:  input,
		Depth:  depth,
		Static: static,
	}
	return c.RunAt(h, self, env)
}

// Deploy simulates deterministic deployment: the address is a pure
// function of caller, salt and init-code hash, and the init code must have
// a registered factory.
func (h *Host) Deploy(caller common.Address, salt common.Hash, initCode []byte, value *uint256.Int, depth int) (common.Address, error) {
	if depth > h.maxDepth {
		return common.Address{}, vm.Revert(vm.KindDepthExceeded, "call depth %d exceeds limit %d", depth, h.maxDepth)
	}
	if h.staticNesting > 0 {
		return common.Address{}, vm.Revert(vm.KindMutabilityViolation, "deployment inside a read-only frame")
	}
	codeHash := crypto.Keccak256Hash(initCode)
	addr := vm.Create2Address(caller, salt, codeHash)
	if _, taken := h.contracts[addr]; taken {
		return common.Address{}, vm.Revert(vm.KindCallFailed, "contract already deployed at %s", addr)
	}
	factory, ok := h.factories[codeHash]
	if !ok {
		return common.Address{}, vm.Revert(vm.KindCallFailed, "no factory for init code %s", codeHash)
	}

	cp := h.journal.checkpoint()
	if value != nil && !value.IsZero() {
		if err := h.transfer(caller, addr, value, tracing.BalanceChangeDeployValue); err != nil {
			return common.Address{}, err
		}
	}
	c, err := factory(addr)
	if err != nil {
		h.journal.revertTo(h, cp)
		return common.Address{}, vm.Revert(vm.KindCallFailed, "constructor failed: %v", err)
	}
	h.contracts[addr] = c
	h.journal.append(contractCreated{addr: addr})
	h.lg.Debug("deployed", "addr", addr, "codeHash", codeHash)
	return addr, nil
}

func (h *Host) transfer(from, to common.Address, value *uint256.Int, reason tracing.BalanceChangeReason) error {
	fromBal := h.Balance(from)
	if fromBal.Lt(value) {
		return vm.Revert(vm.KindCallFailed, "insufficient balance: %s has %s, needs %s", from, fromBal, value)
	}
	h.journal.append(balanceChange{addr: from, prev: fromBal.Clone()})
	h.journal.append(balanceChange{addr: to, prev: h.Balance(to)})
	h.balances[from] = fromBal.Sub(fromBal, value)
	h.balances[to] = h.Balance(to).Add(h.Balance(to), value)
	h.lg.Debug("value transferred", "from", from, "to", to, "value", value, "reason", reason)
	return nil
}
