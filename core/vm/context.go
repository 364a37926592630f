package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Mutability classifies a handler or an outbound call.
type Mutability uint8

const (
	View Mutability = iota
	Mutating
	Payable
)

func (m Mutability) String() string {
	switch m {
	case View:
		return "view"
	case Mutating:
		return "mutating"
	case Payable:
		return "payable"
	}
	return "unknown"
}

// Context is the per-invocation capability object. It is owned by exactly
// one call frame, never escalates from view to mutating, and is
// invalidated when its frame returns so an escaped reference is inert.
type Context struct {
	sender common.Address
	value  *uint256.Int
	depth  int

	mutable bool // write capability of this frame
	claimed bool // capability currently lent to an outbound call
	dead    bool // frame has returned
}

// NewContext builds a frame context. A nil value reads as zero.
func NewContext(sender common.Address, value *uint256.Int, depth int, mutable bool) *Context {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Context{sender: sender, value: value.Clone(), depth: depth, mutable: mutable}
}

func (c *Context) Sender() common.Address { return c.sender }
func (c *Context) Value() *uint256.Int    { return c.value.Clone() }
func (c *Context) Depth() int             { return c.depth }

// Mutable reports whether the frame may write at this moment: it holds the
// write capability and has not lent it out.
func (c *Context) Mutable() bool { return c.mutable && !c.claimed && !c.dead }

// AcquireWrite claims the frame's mutable capability as a token. A view
// context can never produce one, and the claim is exclusive: a second
// acquire before Release fails.
func (c *Context) AcquireWrite() (*WriteToken, error) {
	switch {
	case c.dead:
		return nil, Revert(KindMutabilityViolation, "context used after frame return")
	case !c.mutable:
		return nil, Revert(KindMutabilityViolation, "view context cannot acquire write capability")
	case c.claimed:
		return nil, Revert(KindMutabilityViolation, "write capability already claimed")
	}
	c.claimed = true
	return &WriteToken{ctx: c}, nil
}

// Invalidate marks the context dead. Called by the dispatcher when the
// owning frame returns; every later capability check fails.
func (c *Context) Invalidate() { c.dead = true }

// WriteToken is the non-escalatable mutable capability. It exists only
// while borrowed from a mutating context and must be released (normally by
// the outbound call that consumed it) before the frame can write again.
type WriteToken struct {
	ctx  *Context
	done bool
}

// Release returns the capability to the owning frame. Safe to call twice.
func (t *WriteToken) Release() {
	if t == nil || t.done {
		return
	}
	t.done = true
	t.ctx.claimed = false
}

func (t *WriteToken) valid() bool { return t != nil && !t.done && !t.ctx.dead }
