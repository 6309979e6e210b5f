package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in the smallest currency unit. The server exchanges
// amounts as plain positive integers.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ParseMoney parses a decimal amount string ("12.34" or "12") into cents.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return Money{}, ErrInvalidAmount
	}

	cents := units * 100
	if hasFrac {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		rem, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return Money{}, ErrInvalidAmount
		}
		cents += rem
	}

	return Money{Cents: cents}, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", m.Cents/100, m.Cents%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Cents)
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var cents int64
	if err := json.Unmarshal(data, &cents); err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
