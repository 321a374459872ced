package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// errEmptyBody is returned when a request that needs a body has none.
var errEmptyBody = errors.New("request body is empty")

// newValidator returns a validator that reports fields by their JSON name.
// Decimal fields are checked by their float value, so numeric tags such as
// gte and lte apply to them.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if d, ok := f.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// decode reads a JSON body into dst and validates it. The returned status is
// the one to answer with when err is non-nil.
func (h *Handler) decode(r *http.Request, dst any) (int, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return http.StatusBadRequest, errEmptyBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return http.StatusBadRequest, err
	}
	if err := h.validate.Struct(dst); err != nil {
		return http.StatusBadRequest, err
	}
	return 0, nil
}

// validationDetails turns validator errors into per-field messages. Any
// other error yields nil.
func validationDetails(err error) []ValidationDetail {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]ValidationDetail, 0, len(verrs))
	for _, e := range verrs {
		// Namespace is "Type.json.path"; drop the Go type name.
		field := e.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		details = append(details, ValidationDetail{
			Field:   field,
			Message: validationMessage(e),
		})
	}
	return details
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_with", "required_without":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must contain at least " + e.Param() + " entries"
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "datetime":
		return "Must be a date in " + e.Param() + " format"
	default:
		return "Invalid value"
	}
}
