package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// contentSlot derives the slot where a dynamic field's content begins:
// keccak over the 32-byte base slot. Mapping entries and array elements
// both hang off this kind of derived address, so distinct base slots can
// never collide.
func contentSlot(base *uint256.Int) uint256.Int {
	b := base.Bytes32()
	var out uint256.Int
	out.SetBytes32(crypto.Keccak256(b[:]))
	return out
}

// entrySlot derives a mapping entry's slot from the padded key and the
// base slot: keccak(key32 ++ base32). Dynamic byte keys hash their raw
// bytes instead of a padded word.
func entrySlot(base *uint256.Int, key []byte) uint256.Int {
	b := base.Bytes32()
	var out uint256.Int
	out.SetBytes32(crypto.Keccak256(key, b[:]))
	return out
}

func padKey(b []byte) []byte {
	if len(b) >= SlotSize {
		return b[:SlotSize]
	}
	out := make([]byte, SlotSize)
	copy(out[SlotSize-len(b):], b)
	return out
}

// MappingField addresses a keyed mapping. Entry slots are derived on
// demand; nothing is pre-allocated and absent entries read as zero.
type MappingField struct {
	base uint256.Int
	key  Type
	elem Type
}

func (m MappingField) at(key []byte) Entry {
	return Entry{slot: entrySlot(&m.base, key), elem: m.elem}
}

func (m MappingField) AtAddress(a common.Address) Entry {
	m.mustKey(KindAddress)
	return m.at(padKey(a.Bytes()))
}

func (m MappingField) AtUint(v *uint256.Int) Entry {
	m.mustKey(KindUint)
	k := v.Bytes32()
	return m.at(k[:])
}

func (m MappingField) AtBytes32(h common.Hash) Entry {
	m.mustKey(KindBytes32)
	return m.at(h.Bytes())
}

// AtBytes keys by a raw byte string; the key is hashed unpadded.
func (m MappingField) AtBytes(b []byte) Entry {
	m.mustKey(KindBytes)
	return Entry{slot: entrySlot(&m.base, b), elem: m.elem}
}

func (m MappingField) mustKey(k Kind) {
	if m.key.Kind != k {
		layoutPanic("mapping key is %s", m.key)
	}
}

// Entry is a scoped mutable handle bound to one derived slot. Writes go
// straight through to the store; there is no buffering in the handle.
type Entry struct {
	slot uint256.Int
	elem Type
}

// Slot returns the entry's derived storage address.
func (e Entry) Slot() common.Hash { return common.Hash(e.slot.Bytes32()) }

func (e Entry) mustElem(k Kind) SlotRef {
	if e.elem.Kind != k {
		layoutPanic("entry holds %s", e.elem)
	}
	return SlotRef{Slot: e.slot, Offset: 0, Width: e.elem.width()}
}

func (e Entry) Uint(s Store) *uint256.Int {
	return readPacked(s, e.mustElem(KindUint))
}

func (e Entry) SetUint(s Store, v *uint256.Int) error {
	ref := e.mustElem(KindUint)
	if v.BitLen() > e.elem.Bits {
		return ErrValueRange
	}
	return writePacked(s, ref, v)
}

func (e Entry) Bool(s Store) bool {
	return !readPacked(s, e.mustElem(KindBool)).IsZero()
}

func (e Entry) SetBool(s Store, v bool) error {
	w := new(uint256.Int)
	if v {
		w.SetOne()
	}
	return writePacked(s, e.mustElem(KindBool), w)
}

func (e Entry) Address(s Store) common.Address {
	return common.Address(readPacked(s, e.mustElem(KindAddress)).Bytes20())
}

func (e Entry) SetAddress(s Store, a common.Address) error {
	return writePacked(s, e.mustElem(KindAddress), new(uint256.Int).SetBytes(a.Bytes()))
}

func (e Entry) Bytes32(s Store) common.Hash {
	e.mustElem(KindBytes32)
	return s.GetState(e.Slot())
}

func (e Entry) SetBytes32(s Store, h common.Hash) error {
	e.mustElem(KindBytes32)
	return s.SetState(e.Slot(), h)
}

// Mapping re-scopes a nested mapping value, using the entry slot as the
// inner mapping's base.
func (e Entry) Mapping() MappingField {
	if e.elem.Kind != KindMapping {
		layoutPanic("entry holds %s, not a mapping", e.elem)
	}
	return MappingField{base: e.slot, key: *e.elem.Key, elem: *e.elem.Elem}
}

// ArrayField addresses a dynamic array: the length word lives in the base
// slot and element i occupies keccak(base)+i. Elements are one slot each
// regardless of scalar width; arrays do not pack.
type ArrayField struct {
	base uint256.Int
	elem Type
}

// Len reads the current element count.
func (a ArrayField) Len(s Store) uint64 {
	return readWord(s, common.Hash(a.base.Bytes32())).Uint64()
}

func (a ArrayField) elemEntry(i uint64) Entry {
	slot := contentSlot(&a.base)
	slot.AddUint64(&slot, i)
	return Entry{slot: slot, elem: a.elem}
}

// At returns a handle for element i, bounds-checked against the length.
func (a ArrayField) At(s Store, i uint64) (Entry, error) {
	if i >= a.Len(s) {
		return Entry{}, ErrOutOfBounds
	}
	return a.elemEntry(i), nil
}

// Push appends a zero element and returns its handle.
func (a ArrayField) Push(s Store) (Entry, error) {
	n := a.Len(s)
	if err := a.setLen(s, n+1); err != nil {
		return Entry{}, err
	}
	return a.elemEntry(n), nil
}

// Pop removes the last element, zeroing its slot.
func (a ArrayField) Pop(s Store) error {
	n := a.Len(s)
	if n == 0 {
		return ErrOutOfBounds
	}
	e := a.elemEntry(n - 1)
	if err := s.SetState(e.Slot(), common.Hash{}); err != nil {
		return err
	}
	return a.setLen(s, n-1)
}

func (a ArrayField) setLen(s Store, n uint64) error {
	return s.SetState(common.Hash(a.base.Bytes32()), common.Hash(uint256.NewInt(n).Bytes32()))
}
