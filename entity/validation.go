package entity

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   = validator.New(validator.WithRequiredStructEnabled())
	translator ut.Translator
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	validate.RegisterStructValidation(clubAdminIsMember, Club{})
	_ = validate.RegisterTranslation("adminmember", translator,
		func(t ut.Translator) error {
			return t.Add("adminmember", "{0} must include the club admin", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T("adminmember", fe.Field())
			return msg
		},
	)
}

func clubAdminIsMember(sl validator.StructLevel) {
	club := sl.Current().Interface().(Club)
	if !club.IsMember(club.Admin) {
		sl.ReportError(club.Members, "members", "Members", "adminmember", "")
	}
}

// Validate checks v against its struct tags and returns one message per
// violated constraint, or nil.
func Validate(v any) []string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	return msgs
}
