package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/apperr"
)

// statusFor maps core errors onto HTTP statuses. Upstream diagnostics stay in
// the message so operators can tell a login failure from a missing order.
func statusFor(err error) int {
	var (
		validationErr  *apperr.ValidationError
		notFoundErr    *apperr.NotFoundError
		credentialsErr *apperr.CredentialsError
		authErr        *apperr.UpstreamAuthError
		fetchErr       *apperr.UpstreamFetchError
		netErr         net.Error
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return http.StatusGatewayTimeout
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &credentialsErr):
		return http.StatusInternalServerError
	case errors.As(err, &authErr):
		return http.StatusBadGateway
	case errors.As(err, &fetchErr):
		if fetchErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}

	respondError(w, status, err.Error())
}
