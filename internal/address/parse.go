// Package address turns operator typed addresses and quantities into
// numbers. Input is either decimal or 0x prefixed hexadecimal and must match
// completely; there is no partial parsing.
package address

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrValidation = errors.New("validation")

	ErrEmpty         = errors.New("address is empty")
	ErrInvalid       = errors.New("invalid address")
	ErrRange         = errors.New("address must be 0..0xFFFF")
	ErrQuantity      = errors.New("quantity must be >= 1")
	ErrQuantityRange = errors.New("quantity must be <= 65535")
)

// Error is returned for every rejected input. It matches ErrValidation and
// the specific reason with errors.Is.
type Error struct {
	Field string
	Input string
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

func invalid(field, input string, err error) error {
	return &Error{Field: field, Input: input, Err: err}
}

// Parse accepts "0x1A" (hex) or "26" (decimal).
func Parse(text string) (uint32, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, invalid("address", text, ErrEmpty)
	}

	digits, base := s, 10
	if hex, ok := strings.CutPrefix(s, "0x"); ok {
		digits, base = hex, 16
	}
	if !onlyDigits(digits, base) {
		return 0, invalid("address", text, ErrInvalid)
	}

	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, invalid("address", text, ErrInvalid)
	}
	return uint32(v), nil
}

// ParseRegister is Parse limited to the 16 bit Modbus address space.
func ParseRegister(text string) (uint16, error) {
	v, err := Parse(text)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFF {
		return 0, invalid("address", text, ErrRange)
	}
	return uint16(v), nil
}

// ParseQuantity accepts a decimal count of at least one.
func ParseQuantity(text string) (uint16, error) {
	s := strings.TrimSpace(text)
	if s == "" || !onlyDigits(s, 10) {
		return 0, invalid("quantity", text, ErrQuantity)
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, invalid("quantity", text, ErrQuantityRange)
	}
	if v < 1 {
		return 0, invalid("quantity", text, ErrQuantity)
	}
	return uint16(v), nil
}

func onlyDigits(s string, base int) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case base == 16 && r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
