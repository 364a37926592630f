package storage

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TestUintRoundTrip writes and reads back boundary values at every
// supported width: zero, one, and the all-ones pattern for that width.
func TestUintRoundTrip(t *testing.T) {
	for bits := 8; bits <= 256; bits += 8 {
		s := NewMemStore()
		l := NewLayout(Field("v", Uint(bits)))
		f := l.Uint("v")

		allOnes := widthMask(bits / 8)
		for _, v := range []*uint256.Int{
			new(uint256.Int),
			uint256.NewInt(1),
			allOnes,
		} {
			if err := f.Set(s, v); err != nil {
				t.Fatalf("uint%d: Set(%s): %v", bits, v, err)
			}
			if got := f.Get(s); !got.Eq(v) {
				t.Fatalf("uint%d: got %s, want %s", bits, got, v)
			}
		}

		// One past the all-ones boundary must be rejected, except at the
		// full word where no larger value exists.
		if bits < 256 {
			over := new(uint256.Int).AddUint64(allOnes, 1)
			if err := f.Set(s, over); err != ErrValueRange {
				t.Fatalf("uint%d: overflow write: got %v, want ErrValueRange", bits, err)
			}
		}
	}
}

// TestPackedNeighbors checks that writes to packed fields sharing a slot
// never clobber each other.
func TestPackedNeighbors(t *testing.T) {
	s := NewMemStore()
	l := NewLayout(
		Field("a", Uint(8)),
		Field("b", Uint(64)),
		Field("c", Bool()),
		Field("d", Address()),
	)
	a, b, c, d := l.Uint("a"), l.Uint("b"), l.Bool("c"), l.Address("d")

	addr := common.HexToAddress("0xdeadbeef00000000000000000000000000000001")
	if err := a.Set64(s, 0xAB); err != nil {
		t.Fatal(err)
	}
	if err := b.Set(s, widthMask(8)); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(s, true); err != nil {
		t.Fatal(err)
	}
	if err := d.Set(s, addr); err != nil {
		t.Fatal(err)
	}

	if got := a.Get64(s); got != 0xAB {
		t.Fatalf("a: got %#x", got)
	}
	if got := b.Get(s); !got.Eq(widthMask(8)) {
		t.Fatalf("b: got %s", got)
	}
	if !c.Get(s) {
		t.Fatal("c: got false")
	}
	if got := d.Get(s); got != addr {
		t.Fatalf("d: got %s", got)
	}

	// Overwrite one neighbor and re-check the rest.
	if err := b.Set64(s, 7); err != nil {
		t.Fatal(err)
	}
	if a.Get64(s) != 0xAB || !c.Get(s) || d.Get(s) != addr {
		t.Fatal("neighbor write leaked into packed siblings")
	}
}

// TestMappingKeysNoCollision derives entry slots for a large key sample in
// one mapping and for the same keys in a second mapping, asserting global
// uniqueness.
func TestMappingKeysNoCollision(t *testing.T) {
	l := NewLayout(
		Field("m1", MappingOf(Address(), Uint(256))),
		Field("m2", MappingOf(Address(), Uint(256))),
	)
	m1, m2 := l.Mapping("m1"), l.Mapping("m2")

	seen := make(map[common.Hash]string)
	for i := 0; i < 5000; i++ {
		var a common.Address
		a[0] = byte(i >> 8)
		a[1] = byte(i)
		a[19] = 0x01
		for name, e := range map[string]Entry{"m1": m1.AtAddress(a), "m2": m2.AtAddress(a)} {
			slot := e.Slot()
			if prev, dup := seen[slot]; dup {
				t.Fatalf("slot collision between %s and %s key %d", prev, name, i)
			}
			seen[slot] = name
		}
	}
}

func TestMappingZeroAndWriteThrough(t *testing.T) {
	s := NewMemStore()
	l := NewLayout(Field("balances", MappingOf(Address(), Uint(256))))
	m := l.Mapping("balances")

	alice := common.HexToAddress("0xa11ce")
	if got := m.AtAddress(alice).Uint(s); !got.IsZero() {
		t.Fatalf("absent entry: got %s, want 0", got)
	}

	entry := m.AtAddress(alice)
	if err := entry.SetUint(s, uint256.NewInt(1000)); err != nil {
		t.Fatal(err)
	}
	// Durable immediately: a fresh handle over the same store sees it.
	if got := m.AtAddress(alice).Uint(s); got.Uint64() != 1000 {
		t.Fatalf("write-through: got %s", got)
	}
}

func TestNestedMapping(t *testing.T) {
	s := NewMemStore()
	l := NewLayout(Field("allowances", MappingOf(Address(), MappingOf(Address(), Uint(256)))))
	owner := common.HexToAddress("0x01")
	spender := common.HexToAddress("0x02")

	inner := l.Mapping("allowances").AtAddress(owner).Mapping()
	if err := inner.AtAddress(spender).SetUint(s, uint256.NewInt(5)); err != nil {
		t.Fatal(err)
	}
	if got := inner.AtAddress(spender).Uint(s); got.Uint64() != 5 {
		t.Fatalf("nested entry: got %s", got)
	}
	// The reverse pair lands elsewhere.
	rev := l.Mapping("allowances").AtAddress(spender).Mapping().AtAddress(owner)
	if !rev.Uint(s).IsZero() {
		t.Fatal("reversed keys aliased the same slot")
	}
}

func TestArrayBounds(t *testing.T) {
	s := NewMemStore()
	l := NewLayout(Field("holders", ArrayOf(Address())))
	arr := l.Array("holders")

	if _, err := arr.At(s, 0); err != ErrOutOfBounds {
		t.Fatalf("empty array index: got %v, want ErrOutOfBounds", err)
	}

	for i := 0; i < 3; i++ {
		e, err := arr.Push(s)
		if err != nil {
			t.Fatal(err)
		}
		if err := e.SetAddress(s, common.BytesToAddress([]byte{byte(i + 1)})); err != nil {
			t.Fatal(err)
		}
	}
	if n := arr.Len(s); n != 3 {
		t.Fatalf("len: got %d", n)
	}
	e, err := arr.At(s, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Address(s); got != common.BytesToAddress([]byte{3}) {
		t.Fatalf("elem 2: got %s", got)
	}
	if _, err := arr.At(s, 3); err != ErrOutOfBounds {
		t.Fatalf("past-end index: got %v, want ErrOutOfBounds", err)
	}

	if err := arr.Pop(s); err != nil {
		t.Fatal(err)
	}
	if _, err := arr.At(s, 2); err != ErrOutOfBounds {
		t.Fatalf("popped index still readable: %v", err)
	}
}

func TestBytesFieldRoundTrip(t *testing.T) {
	s := NewMemStore()
	l := NewLayout(Field("name", Bytes()))
	f := l.Bytes("name")

	for _, n := range []int{0, 1, 31, 32, 33, 64, 100} {
		want := make([]byte, n)
		for i := range want {
			want[i] = byte(i + 1)
		}
		if err := f.Set(s, want); err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		got := f.Get(s)
		if n == 0 {
			if len(got) != 0 {
				t.Fatalf("len 0: got %d bytes", len(got))
			}
			continue
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}

	// Shrinking must clear the chunks the longer value used.
	if err := f.Set(s, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	if got := f.Get(s); string(got) != "hi" {
		t.Fatalf("after shrink: got %q", got)
	}
	if len(s) != 2 { // length word + one content chunk
		t.Fatalf("stale chunks left behind: %d words in store", len(s))
	}
}

func TestStoreBackends(t *testing.T) {
	level, err := OpenLevelBackend("")
	if err != nil {
		t.Fatal(err)
	}
	defer level.Close()

	for name, b := range map[string]Backend{"mem": NewMemBackend(), "leveldb": level} {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := b.Get([]byte("absent")); err != nil || ok {
				t.Fatalf("absent key: ok=%v err=%v", ok, err)
			}
			for i := 0; i < 4; i++ {
				key := fmt.Sprintf("k/%d", i)
				if err := b.Put([]byte(key), []byte{byte(i)}); err != nil {
					t.Fatal(err)
				}
			}
			v, ok, err := b.Get([]byte("k/2"))
			if err != nil || !ok || !bytes.Equal(v, []byte{2}) {
				t.Fatalf("get: v=%x ok=%v err=%v", v, ok, err)
			}
			keys, err := b.Keys([]byte("k/"))
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 4 {
				t.Fatalf("prefix scan: got %d keys", len(keys))
			}
			if err := b.Delete([]byte("k/2")); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := b.Get([]byte("k/2")); ok {
				t.Fatal("deleted key still present")
			}
		})
	}
}
