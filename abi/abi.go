// Package abi implements the wire format at the collaborator boundary:
// 4-byte selectors derived from method signatures, and the head/tail word
// encoding for call arguments and return values. Selector tables and any
// richer metadata are produced by a separate compilation component and
// consumed here as opaque input.
package abi

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// SelectorSize is the byte width of a method selector.
const SelectorSize = 4

// WordSize is the byte width of one encoded argument word.
const WordSize = 32

// Selector identifies a method on the wire.
type Selector [SelectorSize]byte

// MethodID derives the selector for a canonical signature such as
// "transfer(address,uint256)".
func MethodID(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature)))
	return s
}

func (s Selector) Hex() string { return fmt.Sprintf("%#x", s[:]) }

// SplitInput separates an inbound payload into selector and argument
// bytes. Payloads shorter than a selector are malformed.
var ErrShortInput = errors.New("abi: input shorter than selector")

func SplitInput(input []byte) (Selector, []byte, error) {
	if len(input) < SelectorSize {
		return Selector{}, nil, ErrShortInput
	}
	var s Selector
	copy(s[:], input)
	return s, input[SelectorSize:], nil
}

// Value is anything the codec knows how to encode into words:
// *uint256.Int, common.Address, common.Hash, bool, uint64 and []byte.
type Value interface{}

// Encode packs values head-tail style: static values occupy one word in
// the head, dynamic byte strings put an offset word in the head and
// length-prefixed padded content in the tail.
func Encode(values ...Value) ([]byte, error) {
	head := make([]byte, 0, len(values)*WordSize)
	var tail []byte
	tailBase := len(values) * WordSize

	for _, v := range values {
		b, ok := v.([]byte)
		if !ok {
			w, err := encodeWord(v)
			if err != nil {
				return nil, err
			}
			head = append(head, w[:]...)
			continue
		}
		off := uint256.NewInt(uint64(tailBase + len(tail))).Bytes32()
		head = append(head, off[:]...)
		n := uint256.NewInt(uint64(len(b))).Bytes32()
		tail = append(tail, n[:]...)
		tail = append(tail, b...)
		if pad := len(b) % WordSize; pad != 0 {
			tail = append(tail, make([]byte, WordSize-pad)...)
		}
	}
	return append(head, tail...), nil
}

// EncodeCall prefixes encoded arguments with the selector, producing a
// complete inbound payload.
func EncodeCall(sel Selector, args ...Value) ([]byte, error) {
	body, err := Encode(args...)
	if err != nil {
		return nil, err
	}
	return append(sel[:], body...), nil
}

func encodeWord(v Value) (common.Hash, error) {
	var w common.Hash
	switch x := v.(type) {
	case *uint256.Int:
		w = common.Hash(x.Bytes32())
	case common.Address:
		copy(w[WordSize-common.AddressLength:], x.Bytes())
	case common.Hash:
		w = x
	case bool:
		if x {
			w[WordSize-1] = 1
		}
	case uint64:
		w = common.Hash(uint256.NewInt(x).Bytes32())
	default:
		return w, fmt.Errorf("abi: cannot encode %T", v)
	}
	return w, nil
}

// Decoder walks an encoded payload word by word. Each ReadX consumes one
// head word; ReadBytes follows the offset into the tail.
type Decoder struct {
	data []byte
	pos  int
}

func NewDecoder(data []byte) *Decoder { return &Decoder{data: data} }

var ErrShortData = errors.New("abi: truncated payload")

func (d *Decoder) word() (common.Hash, error) {
	if d.pos+WordSize > len(d.data) {
		return common.Hash{}, ErrShortData
	}
	var w common.Hash
	copy(w[:], d.data[d.pos:])
	d.pos += WordSize
	return w, nil
}

func (d *Decoder) ReadUint() (*uint256.Int, error) {
	w, err := d.word()
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(w[:]), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	v, err := d.ReadUint()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, errors.New("abi: value exceeds uint64")
	}
	return v.Uint64(), nil
}

func (d *Decoder) ReadAddress() (common.Address, error) {
	w, err := d.word()
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(w[:]), nil
}

func (d *Decoder) ReadHash() (common.Hash, error) { return d.word() }

func (d *Decoder) ReadBool() (bool, error) {
	w, err := d.word()
	if err != nil {
		return false, err
	}
	return w[WordSize-1] != 0, nil
}

// ReadBytes resolves one dynamic argument: an offset word in the head
// pointing at a length word plus content in the tail.
func (d *Decoder) ReadBytes() ([]byte, error) {
	offWord, err := d.word()
	if err != nil {
		return nil, err
	}
	// The offset and length words come off the wire, so the bounds checks
	// must not overflow: compare against the remaining tail, never add to
	// an attacker-chosen value.
	off := new(uint256.Int).SetBytes32(offWord[:])
	total := uint64(len(d.data))
	if !off.IsUint64() || off.Uint64() > total-WordSize {
		return nil, ErrShortData
	}
	p := int(off.Uint64())
	n := new(uint256.Int).SetBytes(d.data[p : p+WordSize])
	if !n.IsUint64() || n.Uint64() > total-WordSize-uint64(p) {
		return nil, ErrShortData
	}
	out := make([]byte, n.Uint64())
	copy(out, d.data[p+WordSize:])
	return out, nil
}

// Remaining reports how many unread bytes are left, head and tail alike.
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }
