package amount

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is an unsigned 256-bit token quantity. The zero value is 0.
type Amount struct {
	v uint256.Int
}

// Zero is the zero amount.
var Zero = Amount{}

// ErrOverflow is returned when a sum no longer fits in 256 bits.
var ErrOverflow = errors.New("amount exceeds 256 bits")

// New returns an Amount holding u.
func New(u uint64) Amount {
	var a Amount
	a.v.SetUint64(u)
	return a
}

// FromBig converts b, rejecting negative values and values wider than 256 bits.
func FromBig(b *big.Int) (Amount, error) {
	var a Amount
	if b == nil {
		return a, nil
	}
	if b.Sign() < 0 {
		return a, fmt.Errorf("negative amount %s", b.String())
	}
	if overflow := a.v.SetFromBig(b); overflow {
		return Amount{}, fmt.Errorf("amount %s exceeds 256 bits", b.String())
	}
	return a, nil
}

// Parse accepts a decimal string or a 0x-prefixed hex string.
func Parse(s string) (Amount, error) {
	var a Amount
	raw := strings.TrimSpace(s)
	if raw == "" {
		return a, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(raw, "-") {
		return a, fmt.Errorf("negative amount %q", s)
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		b, ok := new(big.Int).SetString(raw[2:], 16)
		if !ok {
			return a, fmt.Errorf("parse hex amount %q", s)
		}
		return FromBig(b)
	}
	if err := a.v.SetFromDecimal(raw); err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return a, nil
}

// Add returns a+b, or ErrOverflow if the sum wraps.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, fmt.Errorf("%s + %s: %w", a.String(), b.String(), ErrOverflow)
	}
	return out, nil
}

// Sub returns a-b and whether it underflowed.
func (a Amount) Sub(b Amount) (Amount, bool) {
	var out Amount
	_, underflow := out.v.SubOverflow(&a.v, &b.v)
	return out, underflow
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Big returns a newly allocated big.Int copy.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

func (a Amount) String() string { return a.v.Dec() }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts quoted decimal or hex strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal amount: %w", err)
		}
	} else {
		s = string(data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds every value of m as an unbounded integer.
func Sum[K comparable](m map[K]Amount) *big.Int {
	total := new(big.Int)
	for _, v := range m {
		total.Add(total, v.Big())
	}
	return total
}

// Deficit returns expected-actual as a signed integer.
func Deficit(expected, actual *big.Int) *big.Int {
	return new(big.Int).Sub(expected, actual)
}
