// Package core provides money parsing and handling utilities.
//
// Amounts are whole Rupiah. Display follows the id-ID convention: a "Rp"
// prefix, "." as the thousands separator and no decimals.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// FormatRupiah renders an amount for display.
//
// Examples:
//
//	FormatRupiah(1234567) -> "Rp 1.234.567"
//	FormatRupiah(-2500)   -> "-Rp 2.500"
//	FormatRupiah(0)       -> "Rp 0"
func FormatRupiah(n int64) string {
	if n < 0 {
		return "-Rp " + groupThousands(strconv.FormatUint(uint64(-n), 10))
	}
	return "Rp " + groupThousands(strconv.FormatInt(n, 10))
}

// String implements fmt.Stringer.
func (m Money) String() string {
	return FormatRupiah(m.Amount)
}

// FormatAmountInput keeps only the digits of s and groups them for an input
// field. Returns "" when s carries no digits.
func FormatAmountInput(s string) string {
	digits := onlyDigits(s)
	if digits == "" {
		return ""
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	return groupThousands(digits)
}

// ParseAmount strips every non-digit from s and parses the remainder.
// It returns 0 for empty or unparseable input; callers reject amounts <= 0.
func ParseAmount(s string) int64 {
	digits := onlyDigits(s)
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return -1
		}
		return r
	}, s)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
