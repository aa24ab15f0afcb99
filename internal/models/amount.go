package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a money value in minor units (cents). It is stored as an
// integer column and rendered on the wire as a two-decimal string.
type Amount int64

// ParseAmount parses a decimal string such as "500", "500.5" or "500.00".
// More than two fractional digits, signs other than a leading minus, and
// empty input are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("models: parse amount: empty")
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || !allDigits(whole) {
		return 0, fmt.Errorf("models: parse amount: invalid number %q", s)
	}
	if hasFrac {
		if frac == "" || len(frac) > 2 || !allDigits(frac) {
			return 0, fmt.Errorf("models: parse amount: invalid fraction %q", s)
		}
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("models: parse amount: %w", err)
	}
	if units > math.MaxInt64/100-1 {
		return 0, fmt.Errorf("models: parse amount: %q out of range", s)
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	v := units*100 + cents
	if neg {
		v = -v
	}
	return Amount(v), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the amount with exactly two decimals, e.g. "500.00".
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Display renders the amount for humans, dropping a ".00" suffix.
func (a Amount) Display() string {
	return strings.TrimSuffix(a.String(), ".00")
}

// MarshalJSON writes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Errorf("models: amount must be a string or number")
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
