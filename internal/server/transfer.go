// internal/server/transfer.go
package server

import (
	"errors"
	"fmt"
	"io"
	"libradesk/internal/circulation"
	"libradesk/internal/transfer"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxImportSize = 32 << 20

func formatParam(r *http.Request) (transfer.Format, error) {
	f, err := transfer.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return f, nil
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body := io.LimitReader(r.Body, maxImportSize)

	var report circulation.ImportReport
	switch chi.URLParam(r, "kind") {
	case "books":
		books, derr := transfer.DecodeBooks(body, format)
		if derr != nil {
			h.writeError(w, r, importError(derr))
			return
		}
		report, err = h.engine.ImportBooks(r.Context(), books)
	case "readers":
		readers, derr := transfer.DecodeReaders(body, format)
		if derr != nil {
			h.writeError(w, r, importError(derr))
			return
		}
		report, err = h.engine.ImportReaders(r.Context(), readers)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func importError(err error) error {
	if errors.Is(err, transfer.ErrMalformed) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return err
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contentType := "application/json"
	if format == transfer.FormatXML {
		contentType = "application/xml"
	}

	switch chi.URLParam(r, "kind") {
	case "books":
		books, err := h.records.AllBooks(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if err := transfer.EncodeBooks(w, format, books); err != nil {
			h.log.Error("export failed", zap.String("kind", "books"), zap.Error(err))
		}
	case "readers":
		readers, err := h.records.AllReaders(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if err := transfer.EncodeReaders(w, format, readers); err != nil {
			h.log.Error("export failed", zap.String("kind", "readers"), zap.Error(err))
		}
	default:
		http.NotFound(w, r)
	}
}
