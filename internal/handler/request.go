package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/macleann/fountainheadapi/internal/apperror"
)

// maxBodyBytes caps request bodies. Game documents are the largest payload
// and stay well under this.
const maxBodyBytes = 1 << 20

// validate is shared by all handlers; validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names ("firstName"), not Go field names ("FirstName").
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads the request body into dst and validates it.
//
// Every failure comes back as an apperror validation error, so handlers
// just pass it to writeError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "Request body must not be empty.")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", fmt.Sprintf("Request body must be at most %d bytes.", maxErr.Limit))
		default:
			return apperror.ValidationFailed("", "Malformed JSON body.")
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("", "Request body must contain a single JSON object.")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperror.ValidationFailed(verrs[0].Field(), validationMessage(verrs[0]))
		}
		return apperror.ValidationFailed("", "Invalid request body.")
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	}
	return fmt.Sprintf("Failed the %q check.", fe.Tag())
}
