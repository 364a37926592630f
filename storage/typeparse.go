package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseType parses the textual type grammar used by layout declaration
// files: uintN, bool, address, bytes32, bytes, mapping(K=>V) and T[].
// It is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)

	if strings.HasSuffix(s, "[]") {
		elem, err := ParseType(s[:len(s)-2])
		if err != nil {
			return Type{}, err
		}
		switch elem.Kind {
		case KindMapping, KindArray, KindBytes:
			return Type{}, fmt.Errorf("storage: %s cannot be an array element", elem)
		}
		return ArrayOf(elem), nil
	}

	if strings.HasPrefix(s, "mapping(") && strings.HasSuffix(s, ")") {
		inner := s[len("mapping(") : len(s)-1]
		k, v, err := splitMapping(inner)
		if err != nil {
			return Type{}, err
		}
		key, err := ParseType(k)
		if err != nil {
			return Type{}, err
		}
		switch key.Kind {
		case KindMapping, KindArray:
			return Type{}, fmt.Errorf("storage: %s cannot be a mapping key", key)
		}
		elem, err := ParseType(v)
		if err != nil {
			return Type{}, err
		}
		return MappingOf(key, elem), nil
	}

	switch s {
	case "bool":
		return Bool(), nil
	case "address":
		return Address(), nil
	case "bytes32":
		return Bytes32(), nil
	case "bytes":
		return Bytes(), nil
	}

	if rest, ok := strings.CutPrefix(s, "uint"); ok {
		bits, err := strconv.Atoi(rest)
		if err != nil || bits < 8 || bits > 256 || bits%8 != 0 {
			return Type{}, fmt.Errorf("storage: invalid uint width %q", s)
		}
		return Uint(bits), nil
	}

	return Type{}, fmt.Errorf("storage: unknown type %q", s)
}

// splitMapping splits "K=>V" at the top-level arrow, ignoring arrows nested
// inside a mapping value.
func splitMapping(s string) (string, string, error) {
	depth := 0
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '=':
			if depth == 0 && s[i+1] == '>' {
				return s[:i], s[i+2:], nil
			}
		}
	}
	return "", "", fmt.Errorf("storage: malformed mapping type %q", s)
}
