package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"finex/internal/core"
)

// User-facing messages for domain errors. Anything not listed falls back to
// the caller's generic failure text.
var errorMessages = []struct {
	err error
	msg string
}{
	{core.ErrInvalidAmount, "Nominal harus lebih dari 0"},
	{core.ErrEmptyCategory, "Pilih kategori terlebih dahulu"},
	{core.ErrCategoryMismatch, "Jenis kategori tidak sesuai dengan jenis transaksi"},
	{core.ErrInvalidDate, "Tanggal tidak valid"},
	{core.ErrNoteTooLong, "Catatan maksimal 500 karakter"},
	{core.ErrEmptyName, "Nama kategori tidak boleh kosong"},
	{core.ErrNameTooLong, "Nama terlalu panjang"},
	{core.ErrInvalidColor, "Warna tidak valid"},
	{core.ErrInvalidIcon, "Icon maksimal 2 karakter"},
	{core.ErrInvalidCategoryType, "Jenis kategori tidak valid"},
	{core.ErrInvalidReceipt, "Hanya file JPG dan PNG yang diperbolehkan"},
	{core.ErrReceiptTooLarge, "Ukuran file maksimal 5MB"},
	{core.ErrNotFound, "Data tidak ditemukan"},
	{core.ErrConflict, "Data sudah ada"},
	{core.ErrUnauthorized, "Anda tidak memiliki akses"},
}

// messageFor maps err to Indonesian copy, or fallback when it is not a
// known domain error.
func messageFor(err error, fallback string) string {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return fallback
}

// statusFor maps err to the HTTP status of the error response.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrReceiptTooLarge):
		return http.StatusRequestEntityTooLarge
	case core.IsValidationError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// parseDate parses YYYY-MM-DD as a UTC calendar day. An empty value means
// today.
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.NewDate(now.Year(), now.Month(), now.Day()), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, core.ErrInvalidDate
	}
	return t.UTC(), nil
}

const dateLayout = "2006-01-02"

// sanitizeInput strips control characters (except tab and newlines) and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
