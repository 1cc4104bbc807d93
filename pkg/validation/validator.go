package validation

import (
	"fmt"
	"html"
	"reflect"
	"strings"
	"unicode"

	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// MaxTextLength bounds operator supplied notes and reasons.
const MaxTextLength = 2000

// Validator validates request structs and cleans operator supplied text
type Validator struct {
	validator *validator.Validate
	logger    *zap.Logger
	sanitizer *bluemonday.Policy
}

// NewValidator creates a validator with the transaction specific tags registered
func NewValidator(logger *zap.Logger) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(JSONTagName)

	val := &Validator{
		validator: v,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}
	if err := RegisterCustomValidators(v); err != nil {
		logger.Error("failed to register custom validators", zap.Error(err))
	}
	return val
}

// JSONTagName reports fields by their json name.
func JSONTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// RegisterCustomValidators adds txtype and txstatus to v.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("txtype", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseSourceKind(fl.Field().String())
		return ok
	}); err != nil {
		return err
	}
	return v.RegisterValidation("txstatus", func(fl validator.FieldLevel) bool {
		return models.Status(fl.Field().String()).Valid()
	})
}

// ValidateStruct validates a struct using struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	return FromValidatorError(err)
}

// FromValidatorError turns validator output into an Invalid error with fields.
func FromValidatorError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Invalid.Explain("invalid request body").Wrap(err)
	}
	out := errors.Invalid.Explain("validation error")
	for _, fe := range fieldErrs {
		out = out.WithField(fe.Tag(), fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "txtype":
		return "must be one of transaction_history, wallet_transfer, fiat_transfer"
	case "txstatus":
		return "must be one of pending, processing, completed, failed, cancelled"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "dive":
		return "contains an invalid item"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// SanitizeText strips markup and unprintable characters from free text.
// Nil and blank input yield nil.
func (v *Validator) SanitizeText(input *string) *string {
	if input == nil {
		return nil
	}
	cleaned := strings.TrimSpace(StripUnprintable(v.plainText(*input)))
	if cleaned == "" {
		return nil
	}
	if runes := []rune(cleaned); len(runes) > MaxTextLength {
		v.logger.Debug("truncating operator text", zap.Int("length", len(runes)))
		cleaned = string(runes[:MaxTextLength])
	}
	return &cleaned
}

// plainText sanitizes and unescapes until the text is stable, so markup
// smuggled in as entities is stripped too. Input still changing after
// maxUnescapeRounds is returned escaped.
func (v *Validator) plainText(s string) string {
	for i := 0; i < maxUnescapeRounds; i++ {
		next := html.UnescapeString(v.sanitizer.Sanitize(s))
		if next == s {
			return next
		}
		s = next
	}
	return v.sanitizer.Sanitize(s)
}

const maxUnescapeRounds = 4

// StripUnprintable removes non-printable characters, keeping common whitespace.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// SanitizeForFormulaInjection prefixes a quote when a spreadsheet would
// evaluate the cell as a formula.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
