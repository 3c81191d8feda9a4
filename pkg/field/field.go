// Package field normalizes heterogeneous document values into BN254 scalar
// field elements. The encoding is deterministic: two documents whose fields
// normalize to the same values always produce identical elements, which is
// what makes document roots reproducible across fetches.
package field

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/attestra/compliance-zkproof/config"
)

// EncodeString packs a string into a single field element: UTF-8 bytes,
// big-endian, truncated to MaxStringLen. The empty string encodes as zero.
func EncodeString(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	b := []byte(s)
	if len(b) > config.MaxStringLen {
		b = b[:config.MaxStringLen]
	}
	return new(big.Int).SetBytes(b)
}

// EncodeBool encodes a boolean as 0 or 1.
func EncodeBool(v bool) *big.Int {
	if v {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// EncodeInt encodes a non-negative integer directly. Negative values are
// clamped to zero: compliance counters and array lengths are never negative,
// and a field-modulus wraparound would silently satisfy threshold predicates.
func EncodeInt(v int64) *big.Int {
	if v < 0 {
		return big.NewInt(0)
	}
	return big.NewInt(v)
}

// Stringify renders an arbitrary scalar value deterministically. Floats use
// the shortest representation that round-trips; integral floats drop the
// fractional part so that JSON sources that report 3 as 3.0 normalize
// identically.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return ""
	}
}

// dateLayouts are the accepted date formats, tried in order. External
// registries disagree on date formatting; everything normalizes to UTC
// unix seconds.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
}

// EncodeDate parses a date string and encodes it as unix seconds (UTC).
// Unparseable or empty input encodes as zero, which temporal predicates
// treat as fail-closed.
func EncodeDate(s string) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			sec := t.UTC().Unix()
			if sec < 0 {
				return big.NewInt(0)
			}
			return big.NewInt(sec)
		}
	}
	return big.NewInt(0)
}

// EncodeCount encodes a cardinality: the length of an array value, or the
// number itself when the source already reports a count. Anything else
// encodes as zero.
func EncodeCount(v any) *big.Int {
	switch x := v.(type) {
	case []any:
		return EncodeInt(int64(len(x)))
	case []string:
		return EncodeInt(int64(len(x)))
	case int:
		return EncodeInt(int64(x))
	case int64:
		return EncodeInt(x)
	case float64:
		return EncodeInt(int64(x))
	default:
		return big.NewInt(0)
	}
}
