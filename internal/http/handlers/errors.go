// Package handlers defines the gateway's error codes.
//
// This file centralizes the symbolic codes carried in ErrorResponse and maps
// domain, auth, chat and transport errors onto HTTP status and code, so every
// endpoint reports failures the same way.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/auth"
	"github.com/tbourn/go-docqa-web/internal/chat"
	"github.com/tbourn/go-docqa-web/internal/documents"
	"github.com/tbourn/go-docqa-web/internal/domain"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain specific:
	ErrCodeAuthFailed    = "auth_failed"
	ErrCodeInFlight      = "question_in_flight"
	ErrCodeStale         = "session_changed"
	ErrCodeUploadFailed  = "upload_failed"
	ErrCodeUpstream      = "upstream_error"
	ErrCodeUpstreamDown  = "upstream_unavailable"
	ErrCodeQuestionShort = "question_too_short"
)

// failErr maps a service error onto status, code and message.
func failErr(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		aerr *auth.Error
		uerr *documents.UploadError
		terr *apiclient.TransportError
	)
	switch {
	case errors.As(err, &verr):
		failWith(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Message: verr.Error(), Errors: verr.Errors})
	case errors.Is(err, chat.ErrQuestionTooShort):
		fail(c, http.StatusBadRequest, ErrCodeQuestionShort, err.Error())
	case errors.Is(err, chat.ErrQuestionInFlight):
		fail(c, http.StatusConflict, ErrCodeInFlight, err.Error())
	case errors.Is(err, chat.ErrSessionChanged):
		fail(c, http.StatusConflict, ErrCodeStale, err.Error())
	case errors.As(err, &aerr):
		fail(c, http.StatusUnauthorized, ErrCodeAuthFailed, aerr.Message)
	case errors.As(err, &uerr):
		fail(c, upstreamStatus(uerr.Err), ErrCodeUploadFailed, uerr.Error())
	case errors.As(err, &terr):
		fail(c, upstreamStatus(terr), upstreamCode(terr), apiclient.MessageOf(terr))
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, apiclient.MessageOf(err))
	}
}

// upstreamStatus passes client errors through and turns everything else
// into a gateway error.
func upstreamStatus(err error) int {
	switch s := apiclient.StatusOf(err); {
	case s == 0:
		return http.StatusServiceUnavailable
	case s >= 400 && s < 500:
		return s
	default:
		return http.StatusBadGateway
	}
}

func upstreamCode(err error) string {
	s := apiclient.StatusOf(err)
	switch s {
	case 0:
		return ErrCodeUpstreamDown
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusConflict:
		return ErrCodeConflict
	}
	if s >= 400 && s < 500 {
		return ErrCodeBadRequest
	}
	return ErrCodeUpstream
}
