package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
	"github.com/BrandonDHaskell/gatepass/server/internal/logger"
)

// errBodyTooLarge is reported when a body exceeds the RequestSizeLimit cap.
var errBodyTooLarge = errors.New("request body too large")

// statusForKind maps service error kinds onto HTTP status codes.
func statusForKind(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidTransition, service.KindConflict:
		return http.StatusConflict
	case service.KindAuthentication, service.KindSignature:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError logs the full error against the request logger and sends
// a sanitized {"error","message"} body, plus "status" for invalid
// transitions. Internal errors never leak their message.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	status := statusForKind(kind)

	body := types.ErrorResponse{Error: string(kind), Message: "unexpected server error"}
	var se *service.Error
	if kind != service.KindInternal && errors.As(err, &se) {
		body.Message = se.Message()
		if kind == service.KindInvalidTransition {
			body.Status = string(se.Status())
		}
	}

	reqLogger := logger.ContextRequestLogger(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	reqLogger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status_code", status),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	respondWithJSON(w, status, body)
}

// respondWithStatus sends an error body for failures raised by the
// transport itself rather than a service.
func respondWithStatus(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	logger.ContextRequestLogger(r.Context()).Warn("request rejected",
		slog.Int("status_code", status),
		slog.String("error", code),
	)
	respondWithJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already written.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// decodeJSON decodes a required JSON body. Unknown fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return service.NewValidationError("invalid JSON body")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return service.NewValidationError("invalid JSON body")
	}
}

// respondWithDecodeError distinguishes an oversized body from a malformed one.
func respondWithDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBodyTooLarge) {
		respondWithStatus(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
		return
	}
	respondWithError(w, r, err)
}
