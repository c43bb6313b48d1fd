package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sharow/sharow/internal/domain"
)

// InvalidBillMessage is shown when the model output is not a usable bill.
const InvalidBillMessage = "Sorry, I could not find a valid electricity bill in the image you provided. Please upload a clear photo of your bill."

// Issue is one schema violation.
type Issue struct {
	Path    string
	Message string
}

// SchemaError lists why an output failed the bill schema.
type SchemaError struct {
	Issues []Issue
}

func (e *SchemaError) Error() string {
	return "bill schema invalid: " + e.Details()
}

func (e *SchemaError) Unwrap() error { return domain.ErrSchemaInvalid }

// Details renders one "• msg (field: path)" line per issue.
func (e *SchemaError) Details() string {
	lines := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Path == "" {
			lines = append(lines, "• "+is.Message)
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s (field: %s)", is.Message, is.Path))
	}
	return strings.Join(lines, "\n")
}

// billSchema is the validated shape of the model output. Amounts are capped at
// the largest value a NUMERIC(14, 2) column holds.
type billSchema struct {
	TotalAmount        decimal.NullDecimal        `json:"totalAmount" validate:"omitempty,gte=0,lte=999999999999.99"`
	UnitsConsumed      decimal.NullDecimal        `json:"unitsConsumed" validate:"omitempty,gte=0,lte=999999999999.99"`
	ShadowWaste        decimal.NullDecimal        `json:"shadowWaste" validate:"omitempty,gte=0,lte=999999999999.99"`
	PotentialSavings   decimal.NullDecimal        `json:"potentialSavings" validate:"omitempty,gte=0,lte=999999999999.99"`
	ApplianceBreakdown map[string]decimal.Decimal `json:"applianceBreakdown" validate:"omitempty,dive,gte=0"`
	Tips               []string                   `json:"tips" validate:"omitempty,dive,max=1000"`
}

var schemaValidate = newSchemaValidator()

func newSchemaValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.NullDecimal); ok && d.Valid {
			return d.Decimal.InexactFloat64()
		}
		return nil
	}, decimal.NullDecimal{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		b := sl.Current().Interface().(billSchema)
		if !b.TotalAmount.Valid && !b.UnitsConsumed.Valid {
			sl.ReportError(b.TotalAmount, "totalAmount", "TotalAmount", "required_either", "unitsConsumed")
		}
	}, billSchema{})
	return v
}

var (
	stringFields = []string{
		"billingDate", "dueDate", "accountNumber", "customerName",
		"address", "period", "analysis", "unusualConsumption",
	}
	numberFields = []string{"totalAmount", "unitsConsumed", "shadowWaste", "potentialSavings"}
)

// parseBill decodes and validates an extracted object into a BillAnalysis.
func parseBill(obj map[string]json.RawMessage) (domain.BillAnalysis, error) {
	var (
		out    domain.BillAnalysis
		schema billSchema
		issues []Issue
	)

	strs := make(map[string]string, len(stringFields))
	for _, f := range stringFields {
		s, issue := decodeString(obj[f])
		if issue != "" {
			issues = append(issues, Issue{Path: f, Message: issue})
			continue
		}
		strs[f] = s
	}

	nums := make(map[string]decimal.NullDecimal, len(numberFields))
	for _, f := range numberFields {
		d, issue := decodeNumber(obj[f])
		if issue != "" {
			issues = append(issues, Issue{Path: f, Message: issue})
			continue
		}
		nums[f] = d
	}
	schema.TotalAmount = nums["totalAmount"]
	schema.UnitsConsumed = nums["unitsConsumed"]
	schema.ShadowWaste = nums["shadowWaste"]
	schema.PotentialSavings = nums["potentialSavings"]

	if raw, ok := obj["applianceBreakdown"]; ok && !isNull(raw) {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			issues = append(issues, Issue{Path: "applianceBreakdown", Message: "Expected object, received " + jsonKind(raw)})
		} else {
			schema.ApplianceBreakdown = make(map[string]decimal.Decimal, len(m))
			for name, v := range m {
				d, issue := decodeNumber(v)
				switch {
				case issue != "":
					issues = append(issues, Issue{Path: "applianceBreakdown." + name, Message: issue})
				case d.Valid:
					schema.ApplianceBreakdown[name] = d.Decimal
				}
			}
		}
	}

	if raw, ok := obj["tips"]; ok && !isNull(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			issues = append(issues, Issue{Path: "tips", Message: "Expected array, received " + jsonKind(raw)})
		} else {
			for i, it := range items {
				var s string
				if err := json.Unmarshal(it, &s); err != nil {
					issues = append(issues, Issue{Path: fmt.Sprintf("tips.%d", i), Message: "Expected string, received " + jsonKind(it)})
					continue
				}
				schema.Tips = append(schema.Tips, s)
			}
		}
	}

	if err := schemaValidate.Struct(schema); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return out, fmt.Errorf("op=agent.parseBill: %w", err)
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{Path: fieldPath(fe), Message: schemaMessage(fe)})
		}
	}
	if len(issues) > 0 {
		return out, &SchemaError{Issues: issues}
	}

	out = domain.BillAnalysis{
		TotalAmount:        schema.TotalAmount,
		UnitsConsumed:      schema.UnitsConsumed,
		ShadowWaste:        schema.ShadowWaste,
		PotentialSavings:   schema.PotentialSavings,
		BillingDate:        strs["billingDate"],
		DueDate:            strs["dueDate"],
		AccountNumber:      strs["accountNumber"],
		CustomerName:       strs["customerName"],
		Address:            strs["address"],
		Period:             strs["period"],
		Analysis:           strs["analysis"],
		UnusualConsumption: strs["unusualConsumption"],
		ApplianceBreakdown: schema.ApplianceBreakdown,
		Tips:               schema.Tips,
	}
	return out, nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	return strings.ReplaceAll(ns, "]", "")
}

func schemaMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "Number must be greater than or equal to " + fe.Param()
	case "lte":
		return "Number must be less than or equal to " + fe.Param()
	case "max":
		return "String must contain at most " + fe.Param() + " character(s)"
	case "required_either":
		return "Either totalAmount or " + fe.Param() + " is required"
	default:
		return "Invalid value"
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func jsonKind(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "null"
	}
	switch s[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}

// decodeString accepts strings and numbers; numbers are kept verbatim.
func decodeString(raw json.RawMessage) (string, string) {
	if isNull(raw) {
		return "", ""
	}
	switch jsonKind(raw) {
	case "string":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", "Invalid string"
		}
		return strings.TrimSpace(s), ""
	case "number":
		return strings.TrimSpace(string(raw)), ""
	default:
		return "", "Expected string, received " + jsonKind(raw)
	}
}

// decodeNumber accepts JSON numbers and numeric strings such as "₹1,234.50" or "320 kWh".
func decodeNumber(raw json.RawMessage) (decimal.NullDecimal, string) {
	if isNull(raw) {
		return decimal.NullDecimal{}, ""
	}
	switch jsonKind(raw) {
	case "number":
		d, err := decimal.NewFromString(strings.TrimSpace(string(raw)))
		if err != nil {
			return decimal.NullDecimal{}, "Invalid number"
		}
		return decimal.NewNullDecimal(d), ""
	case "string":
		var s string
		_ = json.Unmarshal(raw, &s)
		d, ok := parseFlexibleNumber(s)
		if !ok {
			if strings.TrimSpace(s) == "" {
				return decimal.NullDecimal{}, ""
			}
			return decimal.NullDecimal{}, "Expected number, received string"
		}
		return d, ""
	default:
		return decimal.NullDecimal{}, "Expected number, received " + jsonKind(raw)
	}
}

var numberInText = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseFlexibleNumber extracts the first number from a string after dropping
// thousands separators, so currency symbols and unit suffixes are ignored.
func parseFlexibleNumber(s string) (decimal.NullDecimal, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := numberInText.FindString(cleaned)
	if m == "" {
		return decimal.NullDecimal{}, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(d), true
}
