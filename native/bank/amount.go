package bank

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseAmount converts a human decimal string such as "12.5" into base units
// of an asset with the given decimals. Excess fractional digits are rejected
// rather than rounded.
func ParseAmount(value string, decimals uint8) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("bank: amount required")
	}
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return 0, fmt.Errorf("bank: amount must be unsigned: %q", value)
	}
	whole, frac, hasDot := strings.Cut(trimmed, ".")
	if hasDot && frac == "" {
		return 0, fmt.Errorf("bank: invalid amount %q", value)
	}
	if len(frac) > int(decimals) {
		return 0, fmt.Errorf("bank: amount %q has more than %d decimals", value, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return 0, fmt.Errorf("bank: invalid amount %q", value)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("bank: amount %q out of range", value)
	}
	return n.Uint64(), nil
}

// FormatAmount renders base units as a decimal string without trailing zeros.
func FormatAmount(amount uint64, decimals uint8) string {
	raw := new(big.Int).SetUint64(amount).String()
	if decimals == 0 {
		return raw
	}
	d := int(decimals)
	if len(raw) <= d {
		raw = strings.Repeat("0", d-len(raw)+1) + raw
	}
	whole, frac := raw[:len(raw)-d], strings.TrimRight(raw[len(raw)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
