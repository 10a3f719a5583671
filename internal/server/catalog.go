// internal/server/catalog.go
package server

import (
	"libradesk/internal/catalog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.records.AllBooks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var book catalog.Book
	if err := decodeBody(r, &book); err != nil {
		h.writeError(w, r, err)
		return
	}

	added, err := h.engine.AddBook(r.Context(), book)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.records.FindBook(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var book catalog.Book
	if err := decodeBody(r, &book); err != nil {
		h.writeError(w, r, err)
		return
	}
	book.ISBN = chi.URLParam(r, "isbn")

	updated, err := h.engine.UpdateBook(r.Context(), book)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleRemoveBook(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveBook(r.Context(), chi.URLParam(r, "isbn")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListReaders(w http.ResponseWriter, r *http.Request) {
	readers, err := h.records.AllReaders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readers)
}

func (h *Handler) handleRegisterReader(w http.ResponseWriter, r *http.Request) {
	var reader catalog.Reader
	if err := decodeBody(r, &reader); err != nil {
		h.writeError(w, r, err)
		return
	}

	registered, err := h.engine.RegisterReader(r.Context(), reader)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (h *Handler) handleGetReader(w http.ResponseWriter, r *http.Request) {
	reader, err := h.records.FindReader(r.Context(), chi.URLParam(r, "subscriber"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reader)
}

func (h *Handler) handleUpdateReader(w http.ResponseWriter, r *http.Request) {
	var reader catalog.Reader
	if err := decodeBody(r, &reader); err != nil {
		h.writeError(w, r, err)
		return
	}
	reader.SubscriberNumber = chi.URLParam(r, "subscriber")

	updated, err := h.engine.UpdateReader(r.Context(), reader)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleRemoveReader(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveReader(r.Context(), chi.URLParam(r, "subscriber")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
