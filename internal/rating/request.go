package rating

import (
	"errors"
	"reflect"
	"strings"

	"tabcoin-ledger-go/internal/models"

	"github.com/go-playground/validator/v10"
)

// RateRequest is one rating action with ids already resolved by the caller.
type RateRequest struct {
	VoterId   string           `json:"voter_id" validate:"required"`
	ContentId string           `json:"content_id" validate:"required"`
	OwnerId   string           `json:"owner_id" validate:"required"`
	Direction models.Direction `json:"transaction_type" validate:"required,oneof=credit debit"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest reports the first failing field as ErrMissingField or
// ErrInvalidField.
func validateRequest(v *validator.Validate, req RateRequest) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return &FieldError{Err: ErrInvalidField}
	}

	fe := validationErrors[0]
	if fe.Tag() == "required" {
		return &FieldError{Field: fe.Field(), Err: ErrMissingField}
	}
	return &FieldError{Field: fe.Field(), Err: ErrInvalidField}
}
