package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the envelope with statusCode as the HTTP status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse maps err through FromDomain. Internal details are not echoed.
func AppErrorResponse(c echo.Context, err error) error {
	appErr := FromDomain(err)
	if appErr.Status >= http.StatusInternalServerError && appErr.Status != http.StatusServiceUnavailable {
		return DataResponse(c, appErr.Status, "Something went wrong")
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
