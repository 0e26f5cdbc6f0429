package types

import (
	"fmt"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// Validate checks the parameter ranges accepted by the hosted endpoints
func (p ModelParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid model parameters: %w", err)
	}
	return nil
}
