package validation

import (
	"errors"
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
)

var (
	personNameRe = regexp.MustCompile(`^[a-zA-ZáéíóúÁÉÍÓÚñÑ\s]+$`)
	phoneRe      = regexp.MustCompile(`^[0-9+\s()-]+$`)
)

// New returns a validator with the custom field rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	_ = v.RegisterValidation("personname", func(fl validatorv10.FieldLevel) bool {
		return personNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validatorv10.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	return v
}

var fieldMessages = map[string]string{
	"personname": "Solo letras y espacios",
	"phone":      "Formato de teléfono inválido",
	"required":   "Campo obligatorio",
	"min":        "Valor demasiado corto",
	"max":        "Valor demasiado largo",
	"gt":         "Debe ser mayor que cero",
	"gte":        "Valor fuera de rango",
	"lte":        "Valor fuera de rango",
	"oneof":      "Valor no permitido",
}

// Fields flattens validator errors into namespace -> message.
func Fields(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			msg, ok := fieldMessages[fe.Tag()]
			if !ok {
				msg = "Valor inválido"
			}
			out[fe.Namespace()] = msg
		}
	} else if err != nil {
		out["error"] = "Datos inválidos"
	}
	return out
}

// Check validates s and converts failures into a 400 operational error whose
// details list the offending fields.
func Check(v *validatorv10.Validate, s interface{}, message string) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	details := ""
	for field, msg := range Fields(err) {
		if details != "" {
			details += "; "
		}
		details += field + ": " + msg
	}
	return apperr.Validation(message).WithDetails(details)
}
