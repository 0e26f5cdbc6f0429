package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	visionamp "github.com/menta2k/vision-amp"
	"github.com/menta2k/vision-amp/internal/log"
	"github.com/menta2k/vision-amp/pkg/pipeline"
	"github.com/menta2k/vision-amp/pkg/types"
)

type errorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
	UpstreamBody   string `json:"upstreamBody,omitempty"`
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	var upstream *types.UpstreamError
	var transport *types.TransportError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, types.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrUndecodableImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, visionamp.ErrEmptyPrompt), errors.Is(err, visionamp.ErrNoImageSelected):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSearchNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	case errors.As(err, &transport):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		resp.Error = fmt.Sprint(httpErr.Message)
	}
	var upstream *types.UpstreamError
	if errors.As(err, &upstream) {
		resp.UpstreamStatus = upstream.StatusCode
		resp.UpstreamBody = upstream.Body
	}

	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, resp)
}
