package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{model.ErrValidation, http.StatusBadRequest, "validation_error"},
	{model.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrCapacity, http.StatusConflict, "capacity"},
	{model.ErrDuplicateBooking, http.StatusConflict, "duplicate_booking"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{model.ErrAlreadyProcessed, http.StatusConflict, "already_processed"},
	{model.ErrAlreadyUsedOrInvalid, http.StatusConflict, "already_used_or_invalid"},
	{model.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{model.ErrNoCounselorAvailable, http.StatusUnprocessableEntity, "no_counselor_available"},
}

// writeDomainError maps an error kind to a status and code. Persistence and
// unknown errors are logged and reported as a bare 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := model.KindOf(err)
	for _, m := range errorMappings {
		if kind == m.kind {
			httpx.WriteCodedError(w, m.status, m.code, message(err))
			return
		}
	}
	logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteCodedError(w, http.StatusInternalServerError, "internal", "internal error")
}

func message(err error) string {
	var me *model.Error
	if errors.As(err, &me) && me.Msg != "" {
		return me.Msg
	}
	return model.KindOf(err).Error()
}
