package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"finex/internal/core"
	"finex/internal/log"
)

// multipart overhead allowed on top of the receipt itself
const receiptFormSlack = 64 << 10

type receiptSlotView struct {
	ReceiptID string
}

// handleUploadReceipt stores the image in multipart field "receipt" and
// answers with the form's receipt slot carrying the new id.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request, v *viewer) {
	r.Body = http.MaxBytesReader(w, r.Body, core.MaxReceiptBytes+receiptFormSlack)
	file, _, err := r.FormFile("receipt")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, core.ErrReceiptTooLarge, "Gagal mengunggah bukti transaksi")
			return
		}
		UnprocessableEntityError("Pilih file bukti transaksi").Write(w)
		return
	}
	defer file.Close()

	// one byte over the limit is enough to reject
	data, err := io.ReadAll(io.LimitReader(file, core.MaxReceiptBytes+1))
	if err != nil {
		s.fail(w, r, err, "Gagal mengunggah bukti transaksi")
		return
	}
	if _, err := core.ValidateReceipt(data); err != nil {
		s.fail(w, r, err, "Gagal mengunggah bukti transaksi")
		return
	}

	id := core.NewReceiptID()
	if err := s.backend.UploadReceipt(r.Context(), id, data); err != nil {
		s.fail(w, r, err, "Gagal mengunggah bukti transaksi")
		return
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Receipt uploaded",
		log.FieldPrincipal, string(v.Principal),
		log.FieldReceiptID, id,
		"bytes", len(data))

	s.writePartial(w, r, SuccessResponse("Bukti transaksi berhasil diunggah"), "receipt_slot", receiptSlotView{ReceiptID: id})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request, _ *viewer) {
	data, err := s.backend.GetReceipt(r.Context(), r.PathValue("id"))
	if err == nil && data == nil {
		err = core.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err, "Gagal memuat bukti transaksi")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}

// handleDeleteReceipt removes a receipt and hands back an empty slot.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request, _ *viewer) {
	if err := s.backend.DeleteReceipt(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err, "Gagal menghapus bukti transaksi")
		return
	}
	s.writePartial(w, r, NewHTMXResponse(), "receipt_slot", receiptSlotView{})
}
