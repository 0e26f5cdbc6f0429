package server

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// echoValidator adapts go-playground/validator to echo's Validator interface
type echoValidator struct {
	validator *validator.Validate
}

func newEchoValidator() *echoValidator {
	return &echoValidator{validator: validator.New()}
}

func (v *echoValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}
	return nil
}
