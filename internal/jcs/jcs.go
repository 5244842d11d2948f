// Package jcs implements RFC 8785 JSON Canonicalization Scheme: object keys
// sorted lexicographically by UTF-16 code unit, no insignificant whitespace,
// and numbers re-emitted in canonical form.
package jcs

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Canonicalize parses arbitrary JSON and re-serializes it per RFC 8785.
// It round-trips: Canonicalize(Canonicalize(b)) == Canonicalize(b), the
// idempotence invariant from spec.md §8.
func Canonicalize(data []byte) ([]byte, error) {
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("jcs: decode: %w", err)
	}
	var sb strings.Builder
	if err := encode(&sb, v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// CanonicalizeValue canonicalizes an already-decoded Go value (as produced
// by encoding/json.Unmarshal into interface{}, or map[string]interface{}).
func CanonicalizeValue(v interface{}) ([]byte, error) {
	// Round-trip through json first so json.Number / float64 inputs are
	// treated uniformly and struct values are supported.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: marshal: %w", err)
	}
	return Canonicalize(data)
}

func encode(sb *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
		return nil
	case bool:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(sb, t)
	case string:
		return encodeString(sb, t)
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := encode(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return less16(keys[i], keys[j]) })
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := encodeString(sb, k); err != nil {
				return err
			}
			sb.WriteByte(':')
			if err := encode(sb, t[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("jcs: unsupported value type %T", v)
	}
}

// less16 compares two strings by UTF-16 code unit, as RFC 8785 requires
// (not by UTF-8 byte or Unicode code point).
func less16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

// encodeString writes a JSON string literal using the minimal escaping
// encoding/json already implements correctly for RFC 8785 purposes.
func encodeString(sb *strings.Builder, s string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	sb.Write(data)
	return nil
}

// encodeNumber re-emits a JSON number in RFC 8785 canonical form: parsed as
// IEEE-754 double, then formatted per the ECMAScript Number::toString
// algorithm that the spec mandates (shortest round-tripping decimal, plain
// decimal notation for magnitudes in [1e-6, 1e21), otherwise a lowercase "e"
// exponent with an explicit sign, integral floats printed without a
// trailing ".0").
func encodeNumber(sb *strings.Builder, n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("jcs: invalid number %q: %w", n, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("jcs: NaN/Infinity not representable in JSON")
	}
	if f == 0 {
		if math.Signbit(f) {
			sb.WriteString("0")
		} else {
			sb.WriteString("0")
		}
		return nil
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	if math.Abs(f) >= 1e-6 && math.Abs(f) < 1e21 {
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// Go emits "e+07"/"e-07"; JS/RFC8785 drops the leading zero in the
	// exponent digits and keeps the "+" or "-" sign.
	if idx := strings.IndexAny(s, "eE"); idx >= 0 {
		mantissa := s[:idx]
		exp := s[idx+1:]
		sign := ""
		if len(exp) > 0 && (exp[0] == '+' || exp[0] == '-') {
			sign = exp[:1]
			exp = exp[1:]
		}
		exp = strings.TrimLeft(exp, "0")
		if exp == "" {
			exp = "0"
		}
		s = mantissa + "e" + sign + exp
	}
	sb.WriteString(s)
	return nil
}
