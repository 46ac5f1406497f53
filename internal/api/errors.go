package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/workerlly/internal/apperr"
	"github.com/sudo-init-do/workerlly/internal/logger"
)

// errorHandler renders every handler error as {"error", "code"}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := render(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request().Context()).Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		logger.FromContext(c.Request().Context()).Warn("write error response", "error", err)
	}
}

func render(err error) (int, echo.Map) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, echo.Map{"error": msg, "code": statusCode(he.Code)}
	}
	kind := apperr.KindOf(err)
	return apperr.HTTPStatus(kind), echo.Map{"error": apperr.Message(err), "code": kind}
}

// statusCode names framework errors (bad JSON, unknown route) in the same style as
// apperr kinds.
func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(apperr.InvalidInput)
	case http.StatusNotFound:
		return string(apperr.NotFound)
	case http.StatusForbidden:
		return string(apperr.Forbidden)
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
