// Package core implements the method dispatcher: contracts as static
// selector tables, and the per-invocation frame handlers run inside.
package core

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/clydemeng/contractkit/abi"
	"github.com/clydemeng/contractkit/core/vm"
	"github.com/clydemeng/contractkit/storage"
)

// Handler executes one method invocation. args is the encoded argument
// payload (selector already stripped); the returned bytes are the encoded
// result. Errors unwind the frame into a structured revert.
type Handler func(f *Frame, args []byte) ([]byte, error)

// Method declares one dispatchable method: its canonical signature, its
// mutability class and its handler.
type Method struct {
	Sig  string
	Kind vm.Mutability
	Fn   Handler
}

// Name returns the method name portion of the signature.
func (m Method) Name() string {
	if i := strings.IndexByte(m.Sig, '('); i >= 0 {
		return m.Sig[:i]
	}
	return m.Sig
}

// Contract is a deployed dispatch unit: an address, an immutable selector
// table built at definition time, and the storage layout its handlers
// address slots through.
type Contract struct {
	addr    common.Address
	layout  *storage.Layout
	methods map[abi.Selector]Method
}

// NewContract builds the static selector table. Duplicate selectors are a
// definition-time error; the table never changes afterwards, so routing is
// a pure function of it.
func NewContract(addr common.Address, layout *storage.Layout, methods ...Method) (*Contract, error) {
	c := &Contract{
		addr:    addr,
		layout:  layout,
		methods: make(map[abi.Selector]Method, len(methods)),
	}
	for _, m := range methods {
		if m.Fn == nil {
			return nil, fmt.Errorf("core: method %q has no handler", m.Sig)
		}
		sel := abi.MethodID(m.Sig)
		if prev, dup := c.methods[sel]; dup {
			return nil, fmt.Errorf("core: selector collision between %q and %q", prev.Sig, m.Sig)
		}
		c.methods[sel] = m
	}
	return c, nil
}

// MustNewContract is NewContract for definition-time tables known good.
func MustNewContract(addr common.Address, layout *storage.Layout, methods ...Method) *Contract {
	c, err := NewContract(addr, layout, methods...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Contract) Address() common.Address { return c.addr }
func (c *Contract) Layout() *storage.Layout { return c.layout }

// MethodBySelector exposes the table for exhaustive routing tests.
func (c *Contract) MethodBySelector(sel abi.Selector) (Method, bool) {
	m, ok := c.methods[sel]
	return m, ok
}

// Selectors returns the registered selectors in no particular order.
func (c *Contract) Selectors() []abi.Selector {
	out := make([]abi.Selector, 0, len(c.methods))
	for sel := range c.methods {
		out = append(out, sel)
	}
	return out
}

// CallEnv is the resolved environment of one inbound invocation.
type CallEnv struct {
	Sender common.Address
	Value  *uint256.Int
	Input  []byte
	Depth  int
	// Static marks the read-only invocation path. The dispatcher requires
	// strict agreement between path and handler class, so a view handler
	// never runs on a path that permits writes and vice versa.
	Static bool
}

// Run dispatches env against the contract's own address.
func (c *Contract) Run(h vm.Host, env CallEnv) ([]byte, error) {
	return c.RunAt(h, c.addr, env)
}

// RunAt dispatches env with self as the storage address, which is how a
// delegate call executes this contract's code in the caller's storage.
func (c *Contract) RunAt(h vm.Host, self common.Address, env CallEnv) ([]byte, error) {
	sel, args, err := abi.SplitInput(env.Input)
	if err != nil {
		return nil, vm.Revert(vm.KindUnknownSelector, "input %d bytes, need at least %d", len(env.Input), abi.SelectorSize)
	}
	m, ok := c.methods[sel]
	if !ok {
		return nil, vm.Revert(vm.KindUnknownSelector, "no method for selector %s", sel.Hex())
	}

	value := env.valueOrZero()
	switch {
	case !value.IsZero() && m.Kind != vm.Payable:
		return nil, vm.Revert(vm.KindMutabilityViolation, "%s method %s received value", m.Kind, m.Name())
	case m.Kind == vm.View && !env.Static:
		return nil, vm.Revert(vm.KindMutabilityViolation, "view method %s invoked on a writable path", m.Name())
	case m.Kind != vm.View && env.Static:
		return nil, vm.Revert(vm.KindMutabilityViolation, "%s method %s invoked on the static path", m.Kind, m.Name())
	}

	ctx := vm.NewContext(env.Sender, value, env.Depth, m.Kind != vm.View)
	f := &Frame{
		host:     h,
		contract: c,
		self:     self,
		ctx:      ctx,
		readOnly: m.Kind == vm.View,
	}
	out, err := m.Fn(f, args)
	ctx.Invalidate()
	if err != nil {
		return nil, asRevert(err)
	}
	return out, nil
}
