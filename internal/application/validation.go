package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/recurrence"
)

var (
	validatorOnce sync.Once
	structCheck   *validator.Validate
)

func structValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := recurrence.ParseClock(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("daypattern", func(fl validator.FieldLevel) bool {
			_, err := recurrence.ParseDays(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("segment", func(fl validator.FieldLevel) bool {
			return persistence.ValidSegment(fl.Field().String())
		})
		v.RegisterStructValidation(func(sl validator.StructLevel) {
			w := sl.Current().Interface().(TimeWindow)
			start, err := recurrence.ParseClock(w.Start)
			if err != nil {
				return
			}
			end, err := recurrence.ParseClock(w.End)
			if err != nil {
				return
			}
			if end <= start {
				sl.ReportError(w.End, "end", "End", "after_start", "")
			}
		}, TimeWindow{})
		structCheck = v
	})
	return structCheck
}

// Validate checks value against its validate tags and returns a
// *ValidationError keyed by JSON field path, or nil.
func Validate(value any) error {
	if vErr := validateStruct(value); vErr != nil {
		return vErr
	}
	return nil
}

func validateStruct(value any) *ValidationError {
	err := structValidator().Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return newValidationError("_", err.Error())
	}

	vErr := &ValidationError{}
	for _, fe := range fieldErrs {
		vErr.add(fieldPath(fe.Namespace()), fieldMessage(fe))
	}
	return vErr
}

func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "clock":
		return "must be a time such as 08:00 or 8:00 AM"
	case "daypattern":
		return "must be a day pattern such as Mon/Wed"
	case "segment":
		return "must not be blank or contain '/'"
	case "after_start":
		return "must be after start"
	case "required_without":
		return fmt.Sprintf("is required when %s is absent", strings.ToLower(fe.Param()))
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
