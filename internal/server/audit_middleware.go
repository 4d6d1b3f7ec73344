package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicRoute(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := s.timeNow()
		entry := AuditLogEntry{
			Timestamp: start.UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Handler:   routeName(r),
			Reference: strings.TrimSpace(referenceFrom(r)),
		}

		if username, _, ok := r.BasicAuth(); ok {
			entry.User = username
		}

		wrw := newResponseWriterWrapper(w)

		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.GetStatusCode()
		entry.Bytes = wrw.GetBytesWritten()
		entry.ExportID = wrw.Header().Get(exportIDHeader)
		entry.DurationMs = s.timeNow().Sub(start).Milliseconds()
		if entry.StatusCode >= http.StatusBadRequest {
			entry.Error = errorMessage(wrw.GetBody())
		}

		s.AuditManager.LogEntry(r.Context(), entry)
	})
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
