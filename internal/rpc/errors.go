package rpc

import (
	"errors"
	"net/http"

	"finex/internal/core"
)

// Error codes carried in the response envelope.
const (
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeInvalid      = "invalid"
	CodeInternal     = "internal"
)

// ErrBadRequest is returned for unknown methods and unparsable params.
var ErrBadRequest = errors.New("malformed rpc request")

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Reason names the exact sentinel so clients can rebuild it.
	Reason string `json:"reason,omitempty"`
}

// sentinels lists every error that survives the wire, keyed by reason.
var sentinels = map[string]error{
	"not_found":         core.ErrNotFound,
	"conflict":          core.ErrConflict,
	"unauthorized":      core.ErrUnauthorized,
	"invalid_amount":    core.ErrInvalidAmount,
	"empty_name":        core.ErrEmptyName,
	"name_too_long":     core.ErrNameTooLong,
	"invalid_color":     core.ErrInvalidColor,
	"invalid_icon":      core.ErrInvalidIcon,
	"invalid_type":      core.ErrInvalidCategoryType,
	"empty_category":    core.ErrEmptyCategory,
	"category_mismatch": core.ErrCategoryMismatch,
	"invalid_date":      core.ErrInvalidDate,
	"note_too_long":     core.ErrNoteTooLong,
	"empty_id":          core.ErrEmptyID,
	"invalid_role":      core.ErrInvalidRole,
	"invalid_receipt":   core.ErrInvalidReceipt,
	"receipt_too_large": core.ErrReceiptTooLarge,
	"bad_request":       ErrBadRequest,
}

// Error is a failure reported by the remote backend. It unwraps to the
// matching core sentinel when one is known.
type Error struct {
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

func encodeError(err error) (int, *wireError) {
	we := &wireError{Code: CodeInternal, Message: "internal error"}
	for reason, target := range sentinels {
		if errors.Is(err, target) {
			we.Reason = reason
			we.Message = err.Error()
			break
		}
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		we.Code = CodeNotFound
	case errors.Is(err, core.ErrConflict):
		we.Code = CodeConflict
	case errors.Is(err, core.ErrUnauthorized):
		we.Code = CodeUnauthorized
	case core.IsValidationError(err), errors.Is(err, ErrBadRequest):
		we.Code = CodeInvalid
	}
	return statusFor(we.Code), we
}

func statusFor(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeError(we *wireError) error {
	e := &Error{Code: we.Code, Message: we.Message, err: sentinels[we.Reason]}
	if e.err == nil {
		switch we.Code {
		case CodeNotFound:
			e.err = core.ErrNotFound
		case CodeConflict:
			e.err = core.ErrConflict
		case CodeUnauthorized:
			e.err = core.ErrUnauthorized
		}
	}
	return e
}
