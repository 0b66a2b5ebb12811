// Package dto provides request bodies and their validation.
package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes the first field that failed validation.
type FieldError struct {
	Field string // JSON name
	Tag   string
	Param string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("field %s failed %s=%s", e.Field, e.Tag, e.Param)
	}
	return fmt.Sprintf("field %s failed %s", e.Field, e.Tag)
}

// Missing reports whether the field was required and absent.
func (e *FieldError) Missing() bool {
	return e.Tag == "required"
}

// Validator returns the shared validator. Decimal fields validate as
// float64 so the numeric tags (gt, gte) apply to them.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
			d, ok := v.Interface().(decimal.Decimal)
			if !ok {
				return nil
			}
			f, _ := d.Float64()
			return f
		}, decimal.Decimal{})
	})
	return validate
}

// Validate checks s against its validate tags. It returns nil or a
// *FieldError for the first failing field.
func Validate(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return err
}
