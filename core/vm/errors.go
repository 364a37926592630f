// Package vm defines the call-level machinery shared by the dispatcher and
// hosts: mutability capabilities, per-invocation contexts, outbound calls,
// the raw invoker and the structured revert format.
package vm

import (
	"errors"
	"fmt"

	"github.com/clydemeng/contractkit/abi"
)

// Built-in revert kinds. Handler-defined kinds are arbitrary strings;
// callers branch on Kind, never on rendered messages.
const (
	KindUnknownSelector     = "UnknownSelector"
	KindMutabilityViolation = "MutabilityViolation"
	KindOutOfBounds         = "OutOfBounds"
	KindValueRange          = "ValueRange"
	KindDepthExceeded       = "DepthExceeded"
	KindCallFailed          = "CallFailed"
	KindHandlerError        = "HandlerError"
)

// RevertError is the structured failure a frame unwinds into. Kind is the
// stable tag callers branch on; Reason is diagnostic text; Data carries
// kind-specific bytes (for CallFailed, the raw revert payload).
type RevertError struct {
	Kind   string
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "revert: " + e.Kind
	}
	return fmt.Sprintf("revert: %s: %s", e.Kind, e.Reason)
}

// Selector returns the 4-byte tag derived from the kind name, the same
// derivation method signatures use.
func (e *RevertError) Selector() abi.Selector {
	return abi.MethodID(e.Kind)
}

// Encode serializes the revert for the wire: kind selector followed by the
// kind string, reason and data in argument encoding. DecodeRevert is the
// inverse.
func (e *RevertError) Encode() []byte {
	body, err := abi.Encode([]byte(e.Kind), []byte(e.Reason), e.Data)
	if err != nil {
		// Only []byte values above; Encode cannot fail on them.
		panic(err)
	}
	sel := e.Selector()
	return append(sel[:], body...)
}

// Revert builds a structured error with a formatted reason.
func Revert(kind, format string, args ...interface{}) *RevertError {
	return &RevertError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// RevertWithData builds a structured error carrying a payload.
func RevertWithData(kind, reason string, data []byte) *RevertError {
	return &RevertError{Kind: kind, Reason: reason, Data: data}
}

// DecodeRevert parses an encoded revert payload back into a RevertError.
// The embedded kind string is authoritative; the leading selector is
// checked against it.
func DecodeRevert(payload []byte) (*RevertError, error) {
	sel, body, err := abi.SplitInput(payload)
	if err != nil {
		return nil, fmt.Errorf("vm: malformed revert payload: %w", err)
	}
	d := abi.NewDecoder(body)
	kind, err := d.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("vm: malformed revert payload: %w", err)
	}
	reason, err := d.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("vm: malformed revert payload: %w", err)
	}
	data, err := d.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("vm: malformed revert payload: %w", err)
	}
	e := &RevertError{Kind: string(kind), Reason: string(reason), Data: data}
	if e.Selector() != sel {
		return nil, fmt.Errorf("vm: revert selector %s does not match kind %q", sel.Hex(), e.Kind)
	}
	return e, nil
}

// IsKind reports whether err is (or wraps) a RevertError with the given
// kind tag.
func IsKind(err error, kind string) bool {
	re := AsRevert(err)
	return re != nil && re.Kind == kind
}

// AsRevert unwraps err to a RevertError, or nil.
func AsRevert(err error) *RevertError {
	var re *RevertError
	if errors.As(err, &re) {
		return re
	}
	return nil
}
