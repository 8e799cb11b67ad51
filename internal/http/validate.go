package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/vickym250/jnschool/internal/core"
)

const (
	notBlankTag = "notblank"
	sessionTag  = "session"
	monthTag    = "month"
)

// requestValidator checks decoded request bodies and renders failures keyed
// by JSON field name.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Money compares as paise so numeric tags such as gte=0 apply.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if m, ok := field.Interface().(core.Money); ok {
			return m.Paise
		}
		return nil
	}, core.Money{})

	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation(sessionTag, func(fl validator.FieldLevel) bool {
		_, err := core.ParseSession(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation(monthTag, func(fl validator.FieldLevel) bool {
		_, err := core.ParseMonth(fl.Field().String())
		return err == nil
	})

	messages := map[string]string{
		notBlankTag: "{0} cannot be blank",
		sessionTag:  "{0} must look like 2025-26",
		monthTag:    "{0} must be a month name",
	}
	for tag, msg := range messages {
		_ = v.RegisterTranslation(tag, translator,
			func(t ut.Translator) error { return t.Add(tag, msg, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(fe.Tag(), fe.Field())
				return s
			})
	}

	return &requestValidator{validate: v, translator: translator}
}

// FieldErrors lists validation problems by JSON field name.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for field, msg := range f {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// Struct validates s. Failures are returned as an error wrapping
// core.ErrInvalidInput whose FieldErrors can be recovered with errors.As.
func (rv *requestValidator) Struct(s any) error {
	err := rv.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	fields := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fe.Translate(rv.translator)
	}
	return &validationError{fields: fields}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

type validationError struct {
	fields FieldErrors
}

func (e *validationError) Error() string {
	return core.ErrInvalidInput.Error() + ": " + e.fields.Error()
}

func (e *validationError) Unwrap() error { return core.ErrInvalidInput }

// Fields returns the per-field messages.
func (e *validationError) Fields() FieldErrors { return e.fields }
