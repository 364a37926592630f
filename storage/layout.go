// Package storage implements the slot-addressed persistent storage model:
// a deterministic allocator that maps ordered field declarations to numeric
// slots, typed accessors over those slots, and the raw key/value backends
// the committed state lives in.
//
// Slot addresses are a pure function of declaration order and the packing
// rule below. Reordering declared fields is a breaking layout migration;
// nothing in this package attempts to detect or repair that.
package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind enumerates the semantic field types the allocator understands.
type Kind uint8

const (
	KindUint    Kind = iota // fixed-width unsigned integer, 8..256 bits
	KindBool                // single byte, 0 or 1
	KindAddress             // 20-byte account address
	KindBytes32             // opaque 32-byte word
	KindBytes               // dynamic byte string
	KindMapping             // key -> value mapping
	KindArray               // dynamic array
)

// Type describes a field's semantic type. Mapping and array types carry
// their key/element types; scalar types carry a bit width where relevant.
type Type struct {
	Kind Kind
	Bits int   // KindUint only
	Key  *Type // KindMapping only
	Elem *Type // KindMapping value / KindArray element
}

// Constructors for the supported types. Invalid combinations are
// definition-time programmer errors and abort with LayoutError.

func Uint(bits int) Type {
	if bits < 8 || bits > 256 || bits%8 != 0 {
		layoutPanic("invalid uint width %d", bits)
	}
	return Type{Kind: KindUint, Bits: bits}
}

func Bool() Type    { return Type{Kind: KindBool} }
func Address() Type { return Type{Kind: KindAddress} }
func Bytes32() Type { return Type{Kind: KindBytes32} }
func Bytes() Type   { return Type{Kind: KindBytes} }

func MappingOf(key, elem Type) Type {
	switch key.Kind {
	case KindUint, KindBool, KindAddress, KindBytes32, KindBytes:
	default:
		layoutPanic("type %s cannot be a mapping key", key)
	}
	return Type{Kind: KindMapping, Key: &key, Elem: &elem}
}

func ArrayOf(elem Type) Type {
	if elem.Kind == KindMapping || elem.Kind == KindArray || elem.Kind == KindBytes {
		layoutPanic("type %s cannot be an array element", elem)
	}
	return Type{Kind: KindArray, Elem: &elem}
}

// width reports the packed byte width of a scalar, or SlotSize for types
// that always consume a whole base slot.
func (t Type) width() int {
	switch t.Kind {
	case KindUint:
		return t.Bits / 8
	case KindBool:
		return 1
	case KindAddress:
		return common.AddressLength
	default:
		return SlotSize
	}
}

// packable reports whether the type participates in slot packing at all.
func (t Type) packable() bool {
	switch t.Kind {
	case KindUint, KindBool, KindAddress:
		return t.width() < SlotSize
	default:
		return false
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KindUint:
		return fmt.Sprintf("uint%d", t.Bits)
	case KindBool:
		return "bool"
	case KindAddress:
		return "address"
	case KindBytes32:
		return "bytes32"
	case KindBytes:
		return "bytes"
	case KindMapping:
		return fmt.Sprintf("mapping(%s=>%s)", t.Key, t.Elem)
	case KindArray:
		return fmt.Sprintf("%s[]", t.Elem)
	}
	return fmt.Sprintf("kind(%d)", t.Kind)
}

// SlotSize is the byte width of one storage slot.
const SlotSize = 32

// SlotRef addresses a field's storage: the base slot plus, for packed
// scalars, the byte range inside it. Offset counts from the least
// significant byte, matching the packing rule external tools implement.
type SlotRef struct {
	Slot   uint256.Int
	Offset int
	Width  int
}

// SlotHash returns the slot address as a 32-byte store key.
func (r SlotRef) SlotHash() common.Hash {
	return common.Hash(r.Slot.Bytes32())
}

// FieldDef is one ordered field declaration handed to the allocator.
type FieldDef struct {
	Name string
	Type Type
}

// Field is a convenience constructor for FieldDef.
func Field(name string, t Type) FieldDef { return FieldDef{Name: name, Type: t} }

// AllocatedField is a declared field after slot assignment.
type AllocatedField struct {
	Name string
	Type Type
	Ref  SlotRef
}

// Layout is the immutable result of slot allocation for one contract.
// It is built once at type-definition time; the typed accessor getters
// below are the only way handlers reach storage.
type Layout struct {
	fields []*AllocatedField
	byName map[string]*AllocatedField
	slots  uint64 // number of base slots consumed
}

// LayoutError signals a broken allocator invariant or an invalid field
// declaration. Both are definition-time bugs, never runtime user input,
// so they abort via panic instead of surfacing as ordinary errors.
type LayoutError struct {
	msg string
}

func (e *LayoutError) Error() string { return "storage: " + e.msg }

func layoutPanic(format string, args ...interface{}) {
	panic(&LayoutError{msg: fmt.Sprintf(format, args...)})
}

// NewLayout allocates slots for the given ordered declarations.
//
// Packing rule: scalars narrower than a slot share the current slot when
// their width still fits, filling from the least significant byte in
// declaration order. Any slot-wide or dynamic field (uint256, bytes32,
// bytes, mapping, array) starts a fresh slot; mappings, arrays and byte
// strings reserve exactly one base slot and derive element addresses on
// demand.
func NewLayout(defs ...FieldDef) *Layout {
	l := &Layout{byName: make(map[string]*AllocatedField, len(defs))}

	var slot uint64
	offset := 0
	for _, def := range defs {
		if def.Name == "" {
			layoutPanic("unnamed field")
		}
		if _, dup := l.byName[def.Name]; dup {
			layoutPanic("duplicate field %q", def.Name)
		}

		w := def.Type.width()
		if def.Type.packable() {
			if offset+w > SlotSize {
				slot++
				offset = 0
			}
		} else {
			if offset != 0 {
				slot++
				offset = 0
			}
		}

		f := &AllocatedField{
			Name: def.Name,
			Type: def.Type,
			Ref:  SlotRef{Slot: *uint256.NewInt(slot), Offset: offset, Width: w},
		}
		l.fields = append(l.fields, f)
		l.byName[def.Name] = f

		if def.Type.packable() {
			offset += w
		} else {
			slot++
			offset = 0
		}
	}
	if offset != 0 {
		slot++
	}
	l.slots = slot

	l.checkOverlap()
	return l
}

// checkOverlap verifies that no two allocated byte ranges intersect. A hit
// here is an allocator bug, not bad user input.
func (l *Layout) checkOverlap() {
	type span struct {
		field    *AllocatedField
		lo, hi   int // byte range inside the slot, [lo, hi)
		reserved bool
	}
	bySlot := make(map[uint64][]span)
	for _, f := range l.fields {
		if !f.Ref.Slot.IsUint64() {
			layoutPanic("slot index overflow for %q", f.Name)
		}
		s := f.Ref.Slot.Uint64()
		bySlot[s] = append(bySlot[s], span{
			field:    f,
			lo:       f.Ref.Offset,
			hi:       f.Ref.Offset + f.Ref.Width,
			reserved: !f.Type.packable(),
		})
	}
	for s, spans := range bySlot {
		for i := 0; i < len(spans); i++ {
			for j := i + 1; j < len(spans); j++ {
				a, b := spans[i], spans[j]
				if a.reserved || b.reserved || (a.lo < b.hi && b.lo < a.hi) {
					layoutPanic("fields %q and %q overlap in slot %d",
						a.field.Name, b.field.Name, s)
				}
			}
		}
	}
}

// Fields returns the allocated fields in declaration order.
func (l *Layout) Fields() []*AllocatedField {
	out := make([]*AllocatedField, len(l.fields))
	copy(out, l.fields)
	return out
}

// Slots reports the number of base slots the layout consumes.
func (l *Layout) Slots() uint64 { return l.slots }

func (l *Layout) field(name string, kind Kind) *AllocatedField {
	f, ok := l.byName[name]
	if !ok {
		layoutPanic("unknown field %q", name)
	}
	if f.Type.Kind != kind {
		layoutPanic("field %q is %s, not %v", name, f.Type, kind)
	}
	return f
}

// Typed accessor getters. Asking for a missing field or the wrong type is
// a definition-time bug and aborts.

func (l *Layout) Uint(name string) UintField {
	f := l.field(name, KindUint)
	return UintField{ref: f.Ref, bits: f.Type.Bits}
}

func (l *Layout) Bool(name string) BoolField {
	return BoolField{ref: l.field(name, KindBool).Ref}
}

func (l *Layout) Address(name string) AddressField {
	return AddressField{ref: l.field(name, KindAddress).Ref}
}

func (l *Layout) Bytes32(name string) Bytes32Field {
	return Bytes32Field{ref: l.field(name, KindBytes32).Ref}
}

func (l *Layout) Bytes(name string) BytesField {
	return BytesField{base: l.field(name, KindBytes).Ref.Slot}
}

func (l *Layout) Mapping(name string) MappingField {
	f := l.field(name, KindMapping)
	return MappingField{base: f.Ref.Slot, key: *f.Type.Key, elem: *f.Type.Elem}
}

func (l *Layout) Array(name string) ArrayField {
	f := l.field(name, KindArray)
	return ArrayField{base: f.Ref.Slot, elem: *f.Type.Elem}
}
