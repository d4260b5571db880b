package framework

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/validator.v9"
	entranslations "gopkg.in/go-playground/validator.v9/translations/en"
)

// validate holds the settings and caches for validating request payloads.
var validate *validator.Validate

// translator is a cache of locale and translation information.
var translator *ut.UniversalTranslator

func init() {
	validate = validator.New()

	// english is both the fallback and the only supported locale
	enLocale := en.New()
	translator = ut.New(enLocale, enLocale)

	lang, _ := translator.GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(validate, lang)

	// Use JSON tag names for errors instead of Go struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Decode reads an HTTP request body looking for a JSON document.
// The body is decoded into the value provided.
//
// The provided value is checked for validation tags if it's a struct.
func Decode(r *http.Request, val any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(val); err != nil {
		return NewRequestError(errors.Wrap(err, "malformed request body"), http.StatusBadRequest)
	}
	return ValidateRequest(val)
}

// ValidateRequest checks the validation tags of a request payload
func ValidateRequest(request any) error {
	err := validate.Struct(request)
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return NewRequestError(err, http.StatusBadRequest)
	}

	lang, _ := translator.GetTranslator("en")
	fieldErrors := make([]FieldError, 0, len(vErrors))
	for _, vError := range vErrors {
		fieldErrors = append(fieldErrors, FieldError{
			Field: vError.Field(),
			Error: vError.Translate(lang),
		})
	}
	return &SafeError{
		Err:        errors.New("field validation error"),
		Title:      http.StatusText(http.StatusBadRequest),
		StatusCode: http.StatusBadRequest,
		Fields:     fieldErrors,
	}
}
