package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// customTags are the validation tags used by the storage types.
var customTags = map[string]validator.Func{
	"event_status": validateStatus,
}

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v, err := newValidator(customTags)
		if err != nil {
			panic(err)
		}
		validate = v
	})
	return validate
}

func newValidator(tags map[string]validator.Func) (*validator.Validate, error) {
	v := validator.New()
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("register validation %q: %w", tag, err)
		}
	}
	return v, nil
}

// validateStatus accepts the known statuses and the empty value, which the
// store replaces with DefaultStatus.
func validateStatus(fl validator.FieldLevel) bool {
	s := Status(fl.Field().String())
	return s == "" || s.Valid()
}

// Validate checks the struct tags of a Calendar, Event or ExceptionDate.
// Failures are reported as ErrInvalidInput storage errors.
func Validate(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Type: ErrInvalidInput, Message: "validation failed", Err: err}
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fe.Field() + " (" + fe.Tag() + ")"
	}
	return &Error{
		Type:    ErrInvalidInput,
		Message: "invalid " + strings.Join(fields, ", "),
		Err:     err,
	}
}
