// internal/catalog/validate.go
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateBook checks the fields a librarian has to fill in.
func ValidateBook(b Book) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: book %q: %s", ErrInvalid, b.ISBN, describe(err))
	}
	return nil
}

// ValidateReader checks a reader record, including a positive loan allowance.
func ValidateReader(r Reader) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: reader %q: %s", ErrInvalid, r.SubscriberNumber, describe(err))
	}
	return nil
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}
