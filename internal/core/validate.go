package core

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field names as they appear on the wire and in forms.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldAmount      = "amount"
	FieldType        = "type"
	FieldCategory    = "category"
	FieldDueDate     = "due_date"
	FieldReconciled  = "reconciled"
	FieldRecurrence  = "recurrence"
)

const (
	MsgRequired       = "This field is required."
	MsgInvalidNumber  = "A valid number is required."
	MsgInvalidDate    = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	MsgInvalidBool    = "Must be a valid boolean."
	MsgInvalidString  = "Not a valid string."
	MsgDateOutOfRange = "Series would run past 9999-12-31."
)

// ValidationError reports every invalid field of a bill at once.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// FieldError builds a ValidationError for a single field.
func FieldError(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.add(field, msg)
	return e
}

// BillInput carries raw, untyped field values from a transport.
// A nil pointer means the field was not supplied.
type BillInput struct {
	Name        *string
	Description *string
	Amount      *string
	Type        *string
	Category    *string
	DueDate     *string
	Reconciled  *string
	Recurrence  *string
}

// Apply overlays the supplied fields onto base and validates the result.
//
// With partial=false the input is a complete representation: name, amount,
// type and due_date must be present and an absent reconciled flag resets to
// false.
// With partial=true absent fields keep the values in base.
// The id and recurrence id of base are never changed.
func (in BillInput) Apply(base Bill, partial bool) (Bill, error) {
	b := base
	verr := &ValidationError{}

	if !partial {
		if in.Name == nil {
			verr.add(FieldName, MsgRequired)
		}
		if in.Type == nil {
			verr.add(FieldType, MsgRequired)
		}
	}

	if in.Name != nil {
		b.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		b.Description = strings.TrimSpace(*in.Description)
	}
	if in.Type != nil {
		b.Type = BillType(strings.TrimSpace(*in.Type))
	}
	if in.Category != nil {
		b.Category = Category(strings.TrimSpace(*in.Category))
	}
	if in.Recurrence != nil {
		b.Recurrence = Recurrence(strings.TrimSpace(*in.Recurrence))
	}

	switch {
	case in.Amount != nil:
		if strings.TrimSpace(*in.Amount) == "" {
			verr.add(FieldAmount, MsgRequired)
		} else if amt, err := ParseAmount(*in.Amount); err != nil {
			verr.add(FieldAmount, MsgInvalidNumber)
		} else {
			b.Amount = amt
		}
	case !partial:
		verr.add(FieldAmount, MsgRequired)
	}

	switch {
	case in.DueDate != nil:
		if strings.TrimSpace(*in.DueDate) == "" {
			verr.add(FieldDueDate, MsgRequired)
		} else if d, err := ParseDate(*in.DueDate); err != nil {
			verr.add(FieldDueDate, MsgInvalidDate)
		} else {
			b.DueDate = d
		}
	case !partial:
		verr.add(FieldDueDate, MsgRequired)
	}

	switch {
	case in.Reconciled != nil:
		v, err := parseBool(*in.Reconciled)
		if err != nil {
			verr.add(FieldReconciled, MsgInvalidBool)
		} else {
			b.Reconciled = v
		}
	case !partial:
		b.Reconciled = false
	}

	if b.Recurrence == "" && !partial {
		b.Recurrence = RecurrenceNone
	}

	if err := b.Validate(); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			for k, v := range ve.Fields {
				verr.add(k, v)
			}
		} else {
			return Bill{}, err
		}
	}

	if err := verr.orNil(); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// Validate checks the struct constraints of a bill.
func (b Bill) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate bill: %w", err)
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), messageFor(fe))
	}
	return verr.orNil()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "enum":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	default:
		return "Invalid value."
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "off", "no":
		return false, nil
	case "1", "true", "on", "yes":
		return true, nil
	}
	return strconv.ParseBool(s)
}

var validate = newValidator()

type enumerated interface {
	IsValid() bool
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		d, ok := f.Interface().(Date)
		if !ok || d.IsZero() {
			return ""
		}
		return d.String()
	}, Date{})
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		e, ok := fl.Field().Interface().(enumerated)
		return ok && e.IsValid()
	})
	return v
}
