package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a currency amount serialized as a string with exactly two
// fractional digits, e.g. "12.50".
type Money decimal.Decimal

// NewMoney wraps d.
func NewMoney(d decimal.Decimal) Money {
	return Money(d)
}

// Decimal returns the underlying value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.Decimal(m)
}

// String formats the amount with two fractional digits.
func (m Money) String() string {
	return decimal.Decimal(m).StringFixed(2)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	*m = Money(d)
	return nil
}
