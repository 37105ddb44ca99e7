// Package services - input validation
//
// Struct validation with go-playground/validator. Errors name fields by
// their JSON name and surface as KindValidation with a fixed message.

package services

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate checks service inputs. Field names in errors are the JSON names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// firstInvalid validates in and converts the first failing field into a
// validation error using messages, keyed by JSON field name. Fields without
// an entry fall back to "Invalid <field>".
func firstInvalid(in any, messages map[string]string) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return E(KindValidation, err.Error())
	}
	field := verrs[0].Field()
	if msg, ok := messages[field]; ok {
		return E(KindValidation, msg)
	}
	return E(KindValidation, "Invalid "+field)
}
