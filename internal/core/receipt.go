package core

import (
	"errors"
	"net/http"
)

// MaxReceiptBytes is the largest receipt image accepted.
const MaxReceiptBytes = 5 << 20

var (
	ErrInvalidReceipt  = errors.New("receipt must be a JPG or PNG image")
	ErrReceiptTooLarge = errors.New("receipt exceeds 5MB")
)

// ValidateReceipt checks size and sniffs the image type. It returns the
// detected content type.
func ValidateReceipt(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrInvalidReceipt
	}
	if len(data) > MaxReceiptBytes {
		return "", ErrReceiptTooLarge
	}
	ct := http.DetectContentType(data)
	switch ct {
	case "image/jpeg", "image/png":
		return ct, nil
	}
	return "", ErrInvalidReceipt
}
