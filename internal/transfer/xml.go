// internal/transfer/xml.go
package transfer

import (
	"encoding/xml"
	"fmt"
	"io"
	"libradesk/internal/catalog"
	"strconv"
	"strings"
)

// bibliotheque is the root of the legacy XML exchange file.
type bibliotheque struct {
	XMLName  xml.Name  `xml:"bibliotheque"`
	Livres   []livre   `xml:"livre"`
	Lecteurs []lecteur `xml:"lecteur"`
}

type livre struct {
	ISBN    string `xml:"isbn"`
	Titre   string `xml:"titre"`
	Auteur  string `xml:"auteur"`
	Annee   string `xml:"annee"`
	Editeur string `xml:"editeur"`
	Statut  string `xml:"statut"`
}

type lecteur struct {
	NumeroAbonne    string `xml:"numeroAbonne"`
	Prenom          string `xml:"prenom"`
	Nom             string `xml:"nom"`
	Email           string `xml:"email"`
	JoursEmpruntMax string `xml:"joursEmpruntMax"`
}

func encodeXML(w io.Writer, doc bibliotheque) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode xml: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	return nil
}

func decodeXML(r io.Reader, doc *bibliotheque) error {
	if err := xml.NewDecoder(r).Decode(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// atoiOrZero reads a number, treating anything unparsable as 0.
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func toLivres(books []catalog.Book) []livre {
	out := make([]livre, 0, len(books))
	for _, b := range books {
		statut := statutAvailable
		if b.Status == catalog.StatusBorrowed {
			statut = statutBorrowed
		}
		out = append(out, livre{
			ISBN:    b.ISBN,
			Titre:   b.Title,
			Auteur:  b.Author,
			Annee:   strconv.Itoa(b.Year),
			Editeur: b.Publisher,
			Statut:  statut,
		})
	}
	return out
}

func fromLivres(livres []livre) []catalog.Book {
	out := make([]catalog.Book, 0, len(livres))
	for _, l := range livres {
		out = append(out, catalog.Book{
			ISBN:      strings.TrimSpace(l.ISBN),
			Title:     strings.TrimSpace(l.Titre),
			Author:    strings.TrimSpace(l.Auteur),
			Year:      atoiOrZero(l.Annee),
			Publisher: strings.TrimSpace(l.Editeur),
			Status:    parseStatus(l.Statut),
		})
	}
	return out
}

func toLecteurs(readers []catalog.Reader) []lecteur {
	out := make([]lecteur, 0, len(readers))
	for _, r := range readers {
		out = append(out, lecteur{
			NumeroAbonne:    r.SubscriberNumber,
			Prenom:          r.FirstName,
			Nom:             r.LastName,
			Email:           r.Email,
			JoursEmpruntMax: strconv.Itoa(r.MaxLoanDays),
		})
	}
	return out
}

func fromLecteurs(lecteurs []lecteur) []catalog.Reader {
	out := make([]catalog.Reader, 0, len(lecteurs))
	for _, l := range lecteurs {
		out = append(out, catalog.Reader{
			SubscriberNumber: strings.TrimSpace(l.NumeroAbonne),
			FirstName:        strings.TrimSpace(l.Prenom),
			LastName:         strings.TrimSpace(l.Nom),
			Email:            strings.TrimSpace(l.Email),
			MaxLoanDays:      atoiOrZero(l.JoursEmpruntMax),
		})
	}
	return out
}
