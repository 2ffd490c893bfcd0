package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/0x0BSoD/repofeed/internal/model"
)

// mapError converts a service error into an echo.HTTPError.
func mapError(err error) *echo.HTTPError {
	var gerr *model.GatewayError

	switch {
	case errors.Is(err, model.ErrInvalidURL),
		errors.Is(err, model.ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, model.ErrAlreadyExists),
		errors.Is(err, model.ErrGenerationInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.As(err, &gerr):
		return echo.NewHTTPError(http.StatusBadGateway, "github unavailable")

	default:
		slog.Error("request failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
