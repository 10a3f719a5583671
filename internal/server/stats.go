// internal/server/stats.go
package server

import (
	"libradesk/internal/metrics"
	"net/http"
)

const (
	defaultTopBooks     = 10
	defaultJournalLimit = 100
)

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.stats.Summary(r.Context(), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// the gauge tracks today only
	if date.IsZero() {
		metrics.OverdueLoans.Set(float64(summary.OverdueLoans))
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleTopBooks(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", defaultTopBooks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	top, err := h.stats.TopBorrowedBooks(r.Context(), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (h *Handler) handleLoansByReader(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.LoansCountByReader(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleReaderCounts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.stats.ReaderLoanCounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	after, err := intParam(r, "after", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", defaultJournalLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.engine.Journal(r.Context(), int64(after), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, events)
}
