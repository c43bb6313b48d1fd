package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sharow/sharow/internal/domain"
)

const maxJSONBody = 1 << 20

// ValidationError is one failed rule, reported in error details.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var (
	errInvalidJSON       = domain.NewAPIError(domain.ErrInvalidArgument, "INVALID_JSON", "Request body is not valid JSON")
	errInvalidAppliances = domain.NewAPIError(domain.ErrInvalidArgument, "INVALID_APPLIANCES", "Appliances are invalid")
	errValidation        = domain.NewAPIError(domain.ErrInvalidArgument, "VALIDATION_ERROR", "Request validation failed")
)

// decodeJSON reads a capped JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errInvalidJSON.WithDetails("request body is empty")
		}
		return errInvalidJSON
	}
	return nil
}

// validationErrors flattens validator output into client-facing details.
func validationErrors(err error) []ValidationError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []ValidationError{{Code: "INVALID", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, ValidationError{
			Field:   fieldName(fe),
			Code:    strings.ToUpper(fe.Tag()),
			Message: ruleMessage(fe),
		})
	}
	return out
}

// fieldName drops the root struct name from the namespace.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email"
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid id", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// validateRequest runs struct rules and wraps failures into apiErr with details.
func validateRequest(v any, apiErr *domain.APIError) error {
	if err := getValidator().Struct(v); err != nil {
		return apiErr.WithDetails(validationErrors(err))
	}
	return nil
}

// parseAppliances decodes the optional multipart appliances field.
func parseAppliances(raw string) ([]domain.Appliance, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var apps []domain.Appliance
	if err := json.Unmarshal([]byte(raw), &apps); err != nil {
		return nil, errInvalidJSON.WithDetails("appliances must be a JSON array")
	}
	if err := getValidator().Var(apps, "max=50,dive"); err != nil {
		return nil, errInvalidAppliances.WithDetails(validationErrors(err))
	}
	return apps, nil
}
