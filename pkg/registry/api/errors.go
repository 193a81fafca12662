package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

// statusFromError maps registry errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDeleted):
		return http.StatusGone
	case errors.Is(err, registry.ErrAccessDenied), errors.Is(err, registry.ErrNotSender):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrInsufficientFee):
		return http.StatusPaymentRequired
	case errors.Is(err, registry.ErrDuplicateContent),
		errors.Is(err, registry.ErrAlreadyDeleted),
		errors.Is(err, registry.ErrNoBalance):
		return http.StatusConflict
	case errors.Is(err, registry.ErrEmptyContentRef),
		errors.Is(err, registry.ErrInvalidQuota),
		errors.Is(err, registry.ErrInvalidAdmin):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes a registry error as a JSON body with the mapped
// status code.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, statusFromError(err))
	render.JSON(w, r, map[string]string{"error": err.Error()})
}
