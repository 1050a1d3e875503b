package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bookingrelay/internal/types"
)

// isoDateLayout is the calendar date layout accepted for check-in dates.
const isoDateLayout = "2006-01-02"

// Validator wraps go-playground/validator and registers the relay's custom
// tags:
//
//	iso_date  string holding a YYYY-MM-DD calendar date
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError describes a single failed rule.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("iso_date", validateISODate); err != nil {
		// Registration only fails on an empty tag or nil func.
		panic(fmt.Sprintf("registering iso_date: %v", err))
	}

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct runs all rules on s. Failures are returned as a
// *types.AppError with code validation_failed, a message describing the first
// failure and every failure under details["errors"].
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: a programming error such as passing nil.
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not run", err)
	}

	details := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ValidationError{
			Field:   fieldPath(fe),
			Code:    fe.Tag(),
			Message: fieldErrorMessage(fe),
		})
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationFailed,
		details[0].Message,
		err,
		map[string]any{"errors": details},
	)
}

// fieldPath strips the root struct name from the namespace, so
// "ReservationRequest.Metadata[name]" becomes "Metadata[name]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "iso_date":
		return field + " must be a date in YYYY-MM-DD format"
	case "max":
		if fe.Kind().String() == "map" {
			return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse(isoDateLayout, fl.Field().String())
	return err == nil
}
