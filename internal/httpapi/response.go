package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Response is the JSON envelope of every JSON route.
type Response struct {
	Success bool       `json:"success"`
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func success(c echo.Context, status int, data any, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return c.JSON(status, Response{
		Success: true,
		Code:    status,
		Message: message,
		Data:    data,
	})
}

func failure(c echo.Context, status int, code, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return c.JSON(status, Response{
		Success: false,
		Code:    status,
		Message: message,
		Error:   &ErrorInfo{Code: code},
	})
}
