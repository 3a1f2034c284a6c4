package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ReviewErrorBadInput           = "REVIEW_BAD_INPUT"
	ReviewErrorIllegalTransition  = "REVIEW_ILLEGAL_TRANSITION"
	ReviewErrorAlreadyApproved    = "REVIEW_ALREADY_APPROVED"
	ReviewErrorPreconditionFailed = "REVIEW_PRECONDITION_FAILED"
	ReviewErrorRateLimited        = "REVIEW_RATE_LIMITED"
	ReviewErrorExternalCall       = "REVIEW_EXTERNAL_CALL_FAILED"
	ReviewErrorPersistence        = "REVIEW_PERSISTENCE_FAILED"
	ReviewErrorUnauthorized       = "REVIEW_UNAUTHORIZED"
	ReviewErrorNotFound           = "REVIEW_NOT_FOUND"
	ReviewErrorInternal           = "REVIEW_INTERNAL_ERROR"
)

func reviewErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureReviewErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "already approved"):
		return newReviewError(err.Error(), goerrors.CategoryConflict, ReviewErrorAlreadyApproved)
	case strings.Contains(msg, "invalid rfc status transition"):
		return newReviewError(err.Error(), goerrors.CategoryConflict, ReviewErrorIllegalTransition)
	case strings.Contains(msg, "rfc not found"), strings.Contains(msg, "stream not found"):
		return newReviewError(err.Error(), goerrors.CategoryNotFound, ReviewErrorNotFound)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newReviewError(err.Error(), goerrors.CategoryRateLimit, ReviewErrorRateLimited)
	case strings.Contains(msg, "persist"), strings.Contains(msg, "durable write"):
		return newReviewError(err.Error(), goerrors.CategoryInternal, ReviewErrorPersistence)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid event"), strings.Contains(msg, "unknown event"):
		return newReviewError(err.Error(), goerrors.CategoryBadInput, ReviewErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureReviewErrorEnvelope(mapped)
}

func newReviewError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureReviewErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureReviewErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = reviewHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultReviewTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultReviewTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ReviewErrorBadInput
	case goerrors.CategoryNotFound:
		return ReviewErrorNotFound
	case goerrors.CategoryConflict:
		return ReviewErrorIllegalTransition
	case goerrors.CategoryRateLimit:
		return ReviewErrorRateLimited
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return ReviewErrorExternalCall
	default:
		return ReviewErrorInternal
	}
}

func reviewHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
