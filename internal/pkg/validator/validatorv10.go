package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shandysiswandi/otpgate/internal/pkg/strcase"
)

// E.164: leading +, country code without zero, up to 15 digits total.
var reE164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// V10Validator implements Validator using go-playground/validator v10.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// V10ValidationError maps snake_case field names to translated messages.
type V10ValidationError map[string]string

func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}

	b, err := json.Marshal(vs)
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// Values returns the field error map.
func (vs V10ValidationError) Values() map[string]string {
	return vs
}

// NewV10Validator constructs a V10Validator with English translations and the
// otpidentity and phone rules registered.
func NewV10Validator() (*V10Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	enTrans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := enTranslations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		return nil, err
	}

	if err := registerCustomRules(validate, enTrans); err != nil {
		return nil, err
	}

	return &V10Validator{validate: validate, translator: enTrans}, nil
}

// Validate validates a struct and returns a V10ValidationError on failure.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var validateErrs validator.ValidationErrors
	if !errors.As(err, &validateErrs) {
		return err
	}

	errV10 := make(V10ValidationError, len(validateErrs))
	for _, fe := range validateErrs {
		errV10[strcase.ToLowerSnake(fe.Field())] = fe.Translate(v.translator)
	}
	return errV10
}

// IsPhone reports whether s is an E.164 phone number.
func IsPhone(s string) bool {
	return reE164.MatchString(s)
}

// IsEmail reports whether s is a bare email address (no display name).
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s, "@")
}

func registerCustomRules(validate *validator.Validate, enTrans ut.Translator) error {
	rules := []struct {
		tag  string
		msg  string
		test func(string) bool
	}{
		{tag: "phone", msg: "{0} must be an E.164 phone number", test: IsPhone},
		{tag: "otpidentity", msg: "{0} must be an email address or an E.164 phone number", test: func(s string) bool {
			return IsEmail(s) || IsPhone(s)
		}},
	}

	for _, rule := range rules {
		test := rule.test
		if err := validate.RegisterValidation(rule.tag, func(fl validator.FieldLevel) bool {
			s, ok := fl.Field().Interface().(string)
			return ok && test(s)
		}); err != nil {
			return err
		}

		msg := rule.msg
		if err := validate.RegisterTranslation(rule.tag, enTrans,
			func(t ut.Translator) error {
				return t.Add(rule.tag, msg, false)
			},
			func(t ut.Translator, fe validator.FieldError) string {
				out, err := t.T(fe.Tag(), fe.Field())
				if err != nil {
					slog.Warn("failed to translate validation error", "tag", fe.Tag(), "error", err)
					return fe.Error()
				}
				return out
			},
		); err != nil {
			return err
		}
	}

	return nil
}
