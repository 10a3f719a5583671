// internal/server/loans.go
package server

import (
	"fmt"
	"libradesk/internal/circulation"
	"libradesk/internal/ledger"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// BorrowBody is the JSON body of POST /loans.
type BorrowBody struct {
	ISBN                 string `json:"isbn"`
	SubscriberNumber     string `json:"subscriber_number"`
	Date                 string `json:"date,omitempty"`
	OverrideMonthlyLimit bool   `json:"override_monthly_limit"`
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var body BorrowBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if body.ISBN == "" || body.SubscriberNumber == "" {
		h.writeError(w, r, fmt.Errorf("%w: isbn and subscriber_number are required", errBadRequest))
		return
	}
	date, err := parseDate(body.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.engine.Borrow(r.Context(), circulation.BorrowRequest{
		ISBN:                 body.ISBN,
		SubscriberNumber:     body.SubscriberNumber,
		Date:                 date,
		OverrideMonthlyLimit: body.OverrideMonthlyLimit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	loan, err := h.engine.Return(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.records.AllLoans(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.records.FindLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	overdue, err := h.stats.AllOverdueLoans(r.Context(), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overdue)
}

// handleReaderLoans lists a reader's loans; ?active=true keeps only open ones.
func (h *Handler) handleReaderLoans(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "subscriber")
	if _, err := h.records.FindReader(r.Context(), sub); err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		loans []ledger.Loan
		err   error
	)
	if r.URL.Query().Get("active") == "true" {
		loans, err = h.stats.ActiveLoansForReader(r.Context(), sub)
	} else {
		loans, err = h.records.LoansByReader(r.Context(), sub)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if loans == nil {
		loans = []ledger.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleReaderOverdue(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "subscriber")
	date, err := dateParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.records.FindReader(r.Context(), sub); err != nil {
		h.writeError(w, r, err)
		return
	}

	overdue, err := h.stats.OverdueLoansForReader(r.Context(), sub, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overdue)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	isbn := r.URL.Query().Get("isbn")
	if isbn == "" {
		h.writeError(w, r, fmt.Errorf("%w: isbn is required", errBadRequest))
		return
	}
	date, err := dateParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	elig, err := h.engine.Eligibility(r.Context(), isbn, chi.URLParam(r, "subscriber"), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, elig)
}
