package view

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

// CallerHeader names the account a request acts for. Signature checks
// happen upstream of this service.
const CallerHeader = "X-Caller-Address"

// StatusCode maps an engine error to the HTTP status a client sees.
func StatusCode(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindAuthorization:
		return http.StatusForbidden
	case model.KindState:
		return http.StatusConflict
	case model.KindTiming:
		return http.StatusUnprocessableEntity
	case model.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// InvalidRequest tags a binding or validator failure so it reports as a
// validation error.
func InvalidRequest(err error) error {
	return errors.Wrap(model.ErrInvalidRequest, err.Error())
}
