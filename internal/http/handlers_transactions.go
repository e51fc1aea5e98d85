package http

import (
	"net/http"
	"strconv"

	"finex/internal/core"
	"finex/internal/log"
)

type transactionRow struct {
	core.Transaction
	CategoryName string
}

type transactionListView struct {
	Rows  []transactionRow
	Query core.LedgerQuery
}

type transactionsPageView struct {
	List transactionListView
}

type transactionFormView struct {
	Editing     bool
	Action      string
	Transaction core.Transaction
	Categories  []core.Category
	Date        string
	Amount      string
}

func rowsFor(txs []core.Transaction, cats []core.Category) []transactionRow {
	rows := make([]transactionRow, len(txs))
	for i, t := range txs {
		name, ok := core.CategoryName(cats, t.CategoryID)
		if !ok {
			name = core.UnknownCategoryName
		}
		rows[i] = transactionRow{Transaction: t, CategoryName: name}
	}
	return rows
}

func (s *Server) transactionList(r *http.Request) (transactionListView, error) {
	q := core.ParseLedgerQuery(r.URL.Query())
	d, err := s.loadLedger(r.Context(), false)
	if err != nil {
		return transactionListView{}, err
	}
	return transactionListView{
		Rows:  rowsFor(core.ApplyLedger(d.Transactions, d.Categories, q), d.Categories),
		Query: q,
	}, nil
}

func (s *Server) handleTransactionsPage(w http.ResponseWriter, r *http.Request, v *viewer) {
	list, err := s.transactionList(r)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat transaksi")
		return
	}
	s.renderPage(w, r, http.StatusOK, "transactions", pageData{
		Title:    "Transaksi",
		UserName: v.Profile.Name,
		Content:  transactionsPageView{List: list},
	})
}

func (s *Server) handleTransactionList(w http.ResponseWriter, r *http.Request, _ *viewer) {
	list, err := s.transactionList(r)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat transaksi")
		return
	}
	s.writePartial(w, r, NewHTMXResponse(), "transaction_list", list)
}

func (s *Server) handleNewTransactionForm(w http.ResponseWriter, r *http.Request, _ *viewer) {
	cats, err := s.backend.GetCategoriesByType(r.Context())
	if err != nil {
		s.fail(w, r, err, "Gagal memuat kategori")
		return
	}
	now := s.now().UTC()
	s.writePartial(w, r, NewHTMXResponse(), "transaction_form", transactionFormView{
		Action:      "/transactions",
		Transaction: core.Transaction{Type: parseCategoryType(r.URL.Query().Get("type"))},
		Categories:  cats,
		Date:        now.Format(dateLayout),
	})
}

func (s *Server) handleEditTransactionForm(w http.ResponseWriter, r *http.Request, _ *viewer) {
	t, err := s.backend.GetTransaction(r.Context(), r.PathValue("id"))
	if err == nil && t == nil {
		err = core.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err, "Gagal memuat transaksi")
		return
	}
	cats, err := s.backend.GetCategoriesByType(r.Context())
	if err != nil {
		s.fail(w, r, err, "Gagal memuat kategori")
		return
	}
	s.writePartial(w, r, NewHTMXResponse(), "transaction_form", transactionFormView{
		Editing:     true,
		Action:      "/transactions/" + t.ID,
		Transaction: *t,
		Categories:  cats,
		Date:        t.Date.UTC().Format(dateLayout),
		Amount:      core.FormatAmountInput(strconv.FormatInt(t.Amount.Amount, 10)),
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, v *viewer) {
	s.saveTransaction(w, r, v, core.NewTransactionID(), false)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, v *viewer) {
	s.saveTransaction(w, r, v, r.PathValue("id"), true)
}

func (s *Server) saveTransaction(w http.ResponseWriter, r *http.Request, v *viewer, id string, update bool) {
	p, err := parseBody(r)
	if err != nil {
		BadRequestError("Format permintaan tidak valid").Write(w)
		return
	}
	t, err := ParseTransactionForm(p, id, s.now())
	if err != nil {
		s.fail(w, r, err, "Gagal menyimpan transaksi")
		return
	}

	success := "Transaksi berhasil ditambahkan"
	if update {
		err = s.backend.UpdateTransaction(r.Context(), t)
		success = "Transaksi berhasil diperbarui"
	} else {
		err = s.backend.AddTransaction(r.Context(), t)
	}
	if err != nil {
		s.fail(w, r, err, "Gagal menyimpan transaksi")
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Transaction saved",
		log.FieldPrincipal, string(v.Principal),
		log.FieldTransactionID, t.ID,
		"update", update)

	SuccessResponse(success).
		TriggerLedgerChanged().
		TriggerCloseDialog().
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, _ *viewer) {
	if err := s.backend.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err, "Gagal menghapus transaksi")
		return
	}
	SuccessResponse("Transaksi berhasil dihapus").
		TriggerLedgerChanged().
		Write(w)
}
