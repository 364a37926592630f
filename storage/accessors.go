package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Store is the word-granular state a frame hands to accessors. Reads of
// never-written slots return the zero word. SetState is fallible so a
// read-only frame can reject writes at the boundary.
type Store interface {
	GetState(common.Hash) common.Hash
	SetState(common.Hash, common.Hash) error
}

var (
	// ErrOutOfBounds is returned for an array index at or past the length.
	ErrOutOfBounds = errors.New("storage: index out of bounds")
	// ErrValueRange is returned when a write does not fit the field width.
	ErrValueRange = errors.New("storage: value exceeds field width")
)

// readWord loads the full slot word.
func readWord(s Store, slot common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(s.GetState(slot).Bytes())
}

func widthMask(width int) *uint256.Int {
	m := new(uint256.Int)
	if width >= SlotSize {
		return m.Not(m) // all ones
	}
	m.SetUint64(1)
	m.Lsh(m, uint(8*width))
	return m.SubUint64(m, 1)
}

// readPacked extracts the field's byte range from its slot.
func readPacked(s Store, ref SlotRef) *uint256.Int {
	word := readWord(s, ref.SlotHash())
	if ref.Width == SlotSize {
		return word
	}
	word.Rsh(word, uint(8*ref.Offset))
	return word.And(word, widthMask(ref.Width))
}

// writePacked read-modify-writes the field's byte range, leaving the other
// bytes of a shared slot untouched.
func writePacked(s Store, ref SlotRef, v *uint256.Int) error {
	key := ref.SlotHash()
	if ref.Width == SlotSize {
		return s.SetState(key, common.Hash(v.Bytes32()))
	}
	shift := uint(8 * ref.Offset)
	mask := new(uint256.Int).Lsh(widthMask(ref.Width), shift)

	word := readWord(s, key)
	word.And(word, new(uint256.Int).Not(mask))
	word.Or(word, new(uint256.Int).Lsh(v, shift))
	return s.SetState(key, common.Hash(word.Bytes32()))
}

// UintField is a fixed-width unsigned integer accessor. Writes are range
// checked against the declared bit width.
type UintField struct {
	ref  SlotRef
	bits int
}

func (f UintField) Get(s Store) *uint256.Int { return readPacked(s, f.ref) }

func (f UintField) Set(s Store, v *uint256.Int) error {
	if v.BitLen() > f.bits {
		return ErrValueRange
	}
	return writePacked(s, f.ref, v)
}

// Get64 is a convenience for fields declared 64 bits or narrower.
func (f UintField) Get64(s Store) uint64 { return f.Get(s).Uint64() }

func (f UintField) Set64(s Store, v uint64) error {
	return f.Set(s, uint256.NewInt(v))
}

// Add adds delta to the stored value, failing on field-width overflow.
func (f UintField) Add(s Store, delta *uint256.Int) error {
	v := f.Get(s)
	v.Add(v, delta)
	return f.Set(s, v)
}

// Sub subtracts delta, failing with ErrValueRange on underflow.
func (f UintField) Sub(s Store, delta *uint256.Int) error {
	v := f.Get(s)
	if v.Lt(delta) {
		return ErrValueRange
	}
	return f.Set(s, v.Sub(v, delta))
}

// BoolField stores one byte, zero or one.
type BoolField struct {
	ref SlotRef
}

func (f BoolField) Get(s Store) bool { return !readPacked(s, f.ref).IsZero() }

func (f BoolField) Set(s Store, v bool) error {
	w := new(uint256.Int)
	if v {
		w.SetOne()
	}
	return writePacked(s, f.ref, w)
}

// AddressField stores a 20-byte address.
type AddressField struct {
	ref SlotRef
}

func (f AddressField) Get(s Store) common.Address {
	return common.Address(readPacked(s, f.ref).Bytes20())
}

func (f AddressField) Set(s Store, a common.Address) error {
	return writePacked(s, f.ref, new(uint256.Int).SetBytes(a.Bytes()))
}

// Bytes32Field stores one opaque word.
type Bytes32Field struct {
	ref SlotRef
}

func (f Bytes32Field) Get(s Store) common.Hash {
	return s.GetState(f.ref.SlotHash())
}

func (f Bytes32Field) Set(s Store, h common.Hash) error {
	return s.SetState(f.ref.SlotHash(), h)
}

// BytesField stores a dynamic byte string: the length word lives in the
// base slot, content chunks at keccak(base)+i. Long form always; there is
// no short-string packing, so external tools need only this one rule.
type BytesField struct {
	base uint256.Int
}

func (f BytesField) Get(s Store) []byte {
	n := readWord(s, common.Hash(f.base.Bytes32())).Uint64()
	if n == 0 {
		return nil
	}
	out := make([]byte, 0, n)
	chunk := contentSlot(&f.base)
	for read := uint64(0); read < n; read += SlotSize {
		word := s.GetState(common.Hash(chunk.Bytes32()))
		take := n - read
		if take > SlotSize {
			take = SlotSize
		}
		out = append(out, word[:take]...)
		chunk.AddUint64(&chunk, 1)
	}
	return out
}

func (f BytesField) Set(s Store, b []byte) error {
	baseKey := common.Hash(f.base.Bytes32())
	oldChunks := chunksFor(readWord(s, baseKey).Uint64())

	if err := s.SetState(baseKey, common.Hash(uint256.NewInt(uint64(len(b))).Bytes32())); err != nil {
		return err
	}
	chunk := contentSlot(&f.base)
	newChunks := chunksFor(uint64(len(b)))
	for i := uint64(0); i < newChunks; i++ {
		var word common.Hash
		copy(word[:], b[i*SlotSize:])
		if err := s.SetState(common.Hash(chunk.Bytes32()), word); err != nil {
			return err
		}
		chunk.AddUint64(&chunk, 1)
	}
	// Clear chunks a previously longer value occupied.
	for i := newChunks; i < oldChunks; i++ {
		if err := s.SetState(common.Hash(chunk.Bytes32()), common.Hash{}); err != nil {
			return err
		}
		chunk.AddUint64(&chunk, 1)
	}
	return nil
}

func chunksFor(n uint64) uint64 { return (n + SlotSize - 1) / SlotSize }
