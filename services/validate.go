package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var tagMessages = map[string]string{
	"required": "ist erforderlich",
	"max":      "ist zu lang",
	"min":      "ist zu kurz",
	"email":    "ist keine gültige E-Mail-Adresse",
	"http_url": "ist keine gültige Web-Adresse",
	"oneof":    "hat einen ungültigen Wert",
	"lte":      "ist zu groß",
	"gte":      "ist zu klein",
}

// validateStruct runs the struct tags of in and reports the first failing
// field as an InputError.
func validateStruct(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		msg = "ist ungültig"
	}
	return invalid("Feld %s %s", fe.Field(), msg)
}
