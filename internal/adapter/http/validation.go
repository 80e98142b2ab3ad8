package http

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Reusable error payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
type ErrorResponse struct {
	Error   string       `json:"error"`
	Code    string       `json:"code,omitempty"`
	Details []FieldError `json:"details,omitempty"`
	// Reauthenticate asks the client to reconnect its wallet before retrying.
	Reauthenticate bool `json:"reauthenticate,omitempty"`
}

var (
	reHexSig = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)
	reTxHash = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New()

	// 65-byte personal_sign signature, 0x-prefixed
	_ = v.RegisterValidation("hexsig", func(fl validator.FieldLevel) bool {
		return reHexSig.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("txhash", func(fl validator.FieldLevel) bool {
		return reTxHash.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("entitytype", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "product" || s == "company"
	})

	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// Map validator.ValidationErrors → []FieldError with readable messages.
func ToFieldErrors(err error) []FieldError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "hexsig":
			out = append(out, FieldError{Field: field, Message: "must be a 0x-prefixed 65-byte hex signature"})
		case "txhash":
			out = append(out, FieldError{Field: field, Message: "must be a 0x-prefixed 32-byte hex hash"})
		case "entitytype":
			out = append(out, FieldError{Field: field, Message: "must be product or company"})
		case "datetime":
			out = append(out, FieldError{Field: field, Message: "must match " + e.Param()})
		case "max":
			out = append(out, FieldError{Field: field, Message: "must be at most " + e.Param() + " characters"})
		case "gte":
			out = append(out, FieldError{Field: field, Message: "must be greater than or equal to " + e.Param()})
		case "lte":
			out = append(out, FieldError{Field: field, Message: "must be less than or equal to " + e.Param()})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}
