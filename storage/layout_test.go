package storage

import (
	"testing"
)

func tokenDefs() []FieldDef {
	return []FieldDef{
		Field("totalSupply", Uint(256)),
		Field("decimals", Uint(8)),
		Field("paused", Bool()),
		Field("owner", Address()),
		Field("pendingOwner", Address()),
		Field("domainSeparator", Bytes32()),
		Field("name", Bytes()),
		Field("balances", MappingOf(Address(), Uint(256))),
		Field("allowances", MappingOf(Address(), MappingOf(Address(), Uint(256)))),
		Field("holders", ArrayOf(Address())),
	}
}

// TestLayoutPacking checks the packing rule on a representative field list:
// narrow scalars share slots in declaration order, slot-wide and dynamic
// fields start fresh slots.
func TestLayoutPacking(t *testing.T) {
	l := NewLayout(tokenDefs()...)

	want := []struct {
		name   string
		slot   uint64
		offset int
		width  int
	}{
		{"totalSupply", 0, 0, 32},
		{"decimals", 1, 0, 1},
		{"paused", 1, 1, 1},
		{"owner", 1, 2, 20},
		{"pendingOwner", 2, 0, 20}, // 22+20 > 32, next slot
		{"domainSeparator", 3, 0, 32},
		{"name", 4, 0, 32},
		{"balances", 5, 0, 32},
		{"allowances", 6, 0, 32},
		{"holders", 7, 0, 32},
	}
	fields := l.Fields()
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i, w := range want {
		f := fields[i]
		if f.Name != w.name {
			t.Fatalf("field %d: got %q, want %q", i, f.Name, w.name)
		}
		if f.Ref.Slot.Uint64() != w.slot || f.Ref.Offset != w.offset || f.Ref.Width != w.width {
			t.Fatalf("field %q: got slot=%d offset=%d width=%d, want slot=%d offset=%d width=%d",
				f.Name, f.Ref.Slot.Uint64(), f.Ref.Offset, f.Ref.Width, w.slot, w.offset, w.width)
		}
	}
	if l.Slots() != 8 {
		t.Fatalf("slots consumed: got %d, want 8", l.Slots())
	}
}

// TestLayoutIdempotent verifies that allocation is a pure function of the
// declaration list.
func TestLayoutIdempotent(t *testing.T) {
	a := NewLayout(tokenDefs()...)
	for run := 0; run < 10; run++ {
		b := NewLayout(tokenDefs()...)
		fa, fb := a.Fields(), b.Fields()
		for i := range fa {
			if fa[i].Ref != fb[i].Ref {
				t.Fatalf("run %d: field %q moved: %v vs %v", run, fa[i].Name, fa[i].Ref, fb[i].Ref)
			}
		}
	}
}

// TestLayoutNoOverlap checks pairwise disjointness of allocated byte
// ranges over assorted width mixes.
func TestLayoutNoOverlap(t *testing.T) {
	widths := []int{8, 16, 32, 64, 128, 256, 8, 8, 64, 16, 256, 32}
	defs := make([]FieldDef, 0, len(widths))
	for i, w := range widths {
		defs = append(defs, Field(fieldName(i), Uint(w)))
	}
	l := NewLayout(defs...)

	type span struct {
		slot   uint64
		lo, hi int
	}
	var spans []span
	for _, f := range l.Fields() {
		spans = append(spans, span{f.Ref.Slot.Uint64(), f.Ref.Offset, f.Ref.Offset + f.Ref.Width})
	}
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.slot == b.slot && a.lo < b.hi && b.lo < a.hi {
				t.Fatalf("fields %d and %d overlap: %+v %+v", i, j, a, b)
			}
		}
	}
}

func fieldName(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}

// TestLayoutRejectsDuplicates checks that a duplicate declaration aborts
// with LayoutError rather than producing a table.
func TestLayoutRejectsDuplicates(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if _, ok := r.(*LayoutError); !ok {
			t.Fatalf("expected *LayoutError, got %T", r)
		}
	}()
	NewLayout(Field("x", Uint(64)), Field("x", Uint(64)))
}

func TestParseTypeRoundTrip(t *testing.T) {
	for _, s := range []string{
		"uint8", "uint64", "uint256", "bool", "address", "bytes32", "bytes",
		"mapping(address=>uint256)",
		"mapping(address=>mapping(address=>uint256))",
		"mapping(bytes32=>bool)",
		"uint64[]", "address[]",
	} {
		typ, err := ParseType(s)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", s, err)
		}
		if got := typ.String(); got != s {
			t.Fatalf("round trip %q: got %q", s, got)
		}
	}
	for _, s := range []string{"uint7", "uint0", "int256", "mapping(address)", "bytes[]", "mapping(uint256=>uint8)[]"} {
		if _, err := ParseType(s); err == nil {
			t.Fatalf("ParseType(%q): expected error", s)
		}
	}
}
