package pluginindex

import (
	"net/http"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Status int32  `json:"status"`
	Code   int32  `json:"code"`
	Err    string `json:"error"`
}

func sendError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	code := int32(errors.ERR_UNKNOWN)

	var tErr *errors.Error
	if errors.As(err, &tErr) {
		code = int32(tErr.Code())

		switch tErr.Code() {
		case errors.ERR_TX_NOT_FOUND, errors.ERR_PLUGIN_NOT_FOUND:
			status = http.StatusNotFound
		case errors.ERR_INVALID_ARGUMENT, errors.ERR_TX_INVALID:
			status = http.StatusBadRequest
		case errors.ERR_PLUGIN_DATA_CONFLICT, errors.ERR_STATE_TRANSITION:
			status = http.StatusConflict
		case errors.ERR_SERVICE_NOT_STARTED, errors.ERR_SERVICE_UNAVAILABLE, errors.ERR_STORAGE_UNAVAILABLE:
			status = http.StatusServiceUnavailable
		}
	}

	e := &errorResponse{
		Status: int32(status),
		Code:   code,
		Err:    err.Error(),
	}

	return c.JSON(status, e)
}
