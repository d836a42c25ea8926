package api

import (
	"errors"
	"net/http"

	"github.com/labwire/workcell/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatState, core.ErrCatLockConflict:
		return http.StatusConflict, true
	case core.ErrCatNoPath:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatTransient:
		return http.StatusServiceUnavailable, true
	case core.ErrCatNode:
		return http.StatusBadGateway, true
	default:
		return http.StatusInternalServerError, true
	}
}
