package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEntity wraps every schema validation failure.
var ErrInvalidEntity = errors.New("invalid entity")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks an entity against its struct tags before it is written.
func Validate(entity interface{}) error {
	if err := validate.Struct(entity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	return nil
}
