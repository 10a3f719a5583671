// internal/transfer/transfer.go
package transfer

import (
	"errors"
	"fmt"
	"io"
	"libradesk/internal/catalog"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Format is a catalog exchange file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// ErrMalformed is returned when an import file cannot be parsed
var ErrMalformed = errors.New("malformed import file")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseFormat reads a format name. An empty name means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "xml":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// bookRecord is the JSON shape of a book: status is written in lower case.
type bookRecord struct {
	ISBN      string `json:"isbn"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Year      int    `json:"year"`
	Publisher string `json:"publisher"`
	Status    string `json:"status"`
}

type readerRecord struct {
	SubscriberNumber string `json:"subscriberNumber"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	MaxLoanDays      int    `json:"maxLoanDays"`
}

// EncodeBooks writes books in the given format.
func EncodeBooks(w io.Writer, f Format, books []catalog.Book) error {
	switch f {
	case FormatXML:
		return encodeXML(w, bibliotheque{Livres: toLivres(books)})
	default:
		records := make([]bookRecord, 0, len(books))
		for _, b := range books {
			records = append(records, bookRecord{
				ISBN:      b.ISBN,
				Title:     b.Title,
				Author:    b.Author,
				Year:      b.Year,
				Publisher: b.Publisher,
				Status:    strings.ToLower(string(b.Status)),
			})
		}
		return encodeJSON(w, records)
	}
}

// DecodeBooks parses books. Unknown status words read as available.
func DecodeBooks(r io.Reader, f Format) ([]catalog.Book, error) {
	switch f {
	case FormatXML:
		var doc bibliotheque
		if err := decodeXML(r, &doc); err != nil {
			return nil, err
		}
		return fromLivres(doc.Livres), nil
	default:
		var records []bookRecord
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		books := make([]catalog.Book, 0, len(records))
		for _, rec := range records {
			books = append(books, catalog.Book{
				ISBN:      strings.TrimSpace(rec.ISBN),
				Title:     rec.Title,
				Author:    rec.Author,
				Year:      rec.Year,
				Publisher: rec.Publisher,
				Status:    parseStatus(rec.Status),
			})
		}
		return books, nil
	}
}

// EncodeReaders writes readers in the given format.
func EncodeReaders(w io.Writer, f Format, readers []catalog.Reader) error {
	switch f {
	case FormatXML:
		return encodeXML(w, bibliotheque{Lecteurs: toLecteurs(readers)})
	default:
		records := make([]readerRecord, 0, len(readers))
		for _, rd := range readers {
			records = append(records, readerRecord{
				SubscriberNumber: rd.SubscriberNumber,
				FirstName:        rd.FirstName,
				LastName:         rd.LastName,
				Email:            rd.Email,
				MaxLoanDays:      rd.MaxLoanDays,
			})
		}
		return encodeJSON(w, records)
	}
}

// DecodeReaders parses readers.
func DecodeReaders(r io.Reader, f Format) ([]catalog.Reader, error) {
	switch f {
	case FormatXML:
		var doc bibliotheque
		if err := decodeXML(r, &doc); err != nil {
			return nil, err
		}
		return fromLecteurs(doc.Lecteurs), nil
	default:
		var records []readerRecord
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		readers := make([]catalog.Reader, 0, len(records))
		for _, rec := range records {
			readers = append(readers, catalog.Reader{
				SubscriberNumber: strings.TrimSpace(rec.SubscriberNumber),
				FirstName:        rec.FirstName,
				LastName:         rec.LastName,
				Email:            rec.Email,
				MaxLoanDays:      rec.MaxLoanDays,
			})
		}
		return readers, nil
	}
}

func encodeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

const (
	statutBorrowed  = "emprunté"
	statutAvailable = "disponible"
)

func parseStatus(s string) catalog.BookStatus {
	if strings.EqualFold(strings.TrimSpace(s), statutBorrowed) {
		return catalog.StatusBorrowed
	}
	status, err := catalog.ParseStatus(s)
	if err != nil {
		return catalog.StatusAvailable
	}
	return status
}
