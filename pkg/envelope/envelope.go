// Package envelope renders the JSON response shape shared by every endpoint.
package envelope

import (
	"github.com/labstack/echo/v4"
)

type Success struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type Failure struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func OK(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Success{Success: true, Data: data})
}

func Fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Failure{Message: message, Code: code})
}

func FailFields(c echo.Context, status int, code, message string, fields map[string]string) error {
	return c.JSON(status, Failure{Message: message, Code: code, Fields: fields})
}
