// Package validation checks request bodies and decodes query strings into filter structs.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/api/response"
)

// Both are configured once here and only read afterwards.
var (
	validate     = newValidator()
	queryDecoder = newQueryDecoder()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(fieldName)

	for tag, fn := range map[string]validator.Func{
		"no_null_bytes": noNullBytes,
		"json_object":   jsonObject,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validator: %v", tag, err))
		}
	}

	return v
}

func newQueryDecoder() *form.Decoder {
	d := form.NewDecoder()
	d.RegisterCustomTypeFunc(decodeTimeParam, (*time.Time)(nil))
	d.RegisterCustomTypeFunc(decodeUUIDParam, (*uuid.UUID)(nil))

	return d
}

// fieldName reports fields by their json name, falling back to the form name for query structs.
func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")

		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}

	return fld.Name
}

func decodeTimeParam(vals []string) (any, error) {
	if len(vals) == 0 || vals[0] == "" {
		return (*time.Time)(nil), nil
	}

	t, err := time.Parse(time.RFC3339, vals[0])
	if err != nil {
		return nil, fmt.Errorf("invalid date format, expected RFC3339 (ISO 8601): %w", err)
	}

	return &t, nil
}

func decodeUUIDParam(vals []string) (any, error) {
	if len(vals) == 0 || vals[0] == "" {
		return (*uuid.UUID)(nil), nil
	}

	id, err := uuid.Parse(vals[0])
	if err != nil {
		return nil, fmt.Errorf("invalid UUID: %w", err)
	}

	return &id, nil
}

// Error is returned by ValidateStruct. Its message lists every failed field.
type Error struct {
	fields validator.ValidationErrors
}

func (e *Error) Error() string {
	messages := make([]string, len(e.fields))
	for i, fe := range e.fields {
		messages[i] = fieldMessage(fe)
	}

	return "validation failed: " + strings.Join(messages, "; ")
}

func (e *Error) Unwrap() error { return e.fields }

// ValidateStruct runs the validate tags of s.
func ValidateStruct(s any) error {
	err := validate.Struct(s)

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		return &Error{fields: fields}
	}

	return err
}

func fieldMessage(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + param
	case "max":
		return field + " must be at most " + param
	case "oneof":
		return field + " must be one of: " + param
	case "email":
		return field + " must be a valid email address"
	case "url":
		return field + " must be a valid URL"
	case "json_object":
		return field + " must be a JSON object"
	case "no_null_bytes":
		return field + " must not contain NULL bytes"
	}

	return field + " is invalid"
}

// GetValidationErrorDetails returns one entry per failed field, or nil when err is not a validation error.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return nil
	}

	details := make([]response.ErrorDetail, len(fields))
	for i, fe := range fields {
		details[i] = response.ErrorDetail{Location: fe.Namespace(), Message: fieldMessage(fe), Value: fe.Value()}
	}

	return details
}

// RespondValidationError writes a 400 problem whose errors list the failed fields.
func RespondValidationError(w http.ResponseWriter, err error) {
	response.RespondProblem(w, response.ProblemDetails{
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: GetValidationErrorDetails(err),
	})
}

// ValidateAndDecodeQueryParams fills dst from the query string and validates it.
func ValidateAndDecodeQueryParams(r *http.Request, dst any) error {
	if err := queryDecoder.Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("decode query parameters: %w", err)
	}

	return ValidateStruct(dst)
}

// noNullBytes rejects strings containing NUL, which Postgres text columns refuse.
func noNullBytes(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return true
		}

		field = field.Elem()
	}

	return field.Kind() != reflect.String || !strings.ContainsRune(field.String(), 0)
}

// jsonObject accepts raw JSON bytes that encode an object.
func jsonObject(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice || field.Type().Elem().Kind() != reflect.Uint8 {
		return false
	}

	raw := bytes.TrimSpace(field.Bytes())

	return len(raw) > 0 && raw[0] == '{' && json.Valid(raw)
}
