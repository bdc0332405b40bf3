package checkin

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable check-in failure reason.
type Code string

const (
	CodeMalformedPayload        Code = "MALFORMED_PAYLOAD"
	CodeParticipantNotFound     Code = "PARTICIPANT_NOT_FOUND"
	CodeParticipantInactive     Code = "PARTICIPANT_INACTIVE"
	CodeNotAParticipant         Code = "NOT_A_PARTICIPANT"
	CodeNoEligibleTargets       Code = "NO_ELIGIBLE_TARGETS"
	CodeCooldownActive          Code = "COOLDOWN_ACTIVE"
	CodePartialRecordingFailure Code = "PARTIAL_RECORDING_FAILURE"
	CodeStoreUnavailable        Code = "STORE_UNAVAILABLE"

	// Terminal session errors
	CodeNoTargetsSelected Code = "NO_TARGETS_SELECTED"
	CodeInvalidTarget     Code = "INVALID_TARGET"
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeSessionStopped    Code = "SESSION_STOPPED"
	CodeCameraUnavailable Code = "CAMERA_UNAVAILABLE"
)

// HTTPStatus maps codes to the status the API answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeMalformedPayload, CodeNoTargetsSelected, CodeInvalidTarget:
		return http.StatusBadRequest
	case CodeParticipantNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeParticipantInactive, CodeNotAParticipant, CodeNoEligibleTargets:
		return http.StatusUnprocessableEntity
	case CodeCooldownActive:
		return http.StatusTooManyRequests
	case CodeSessionStopped:
		return http.StatusConflict
	case CodeStoreUnavailable, CodeCameraUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Code plus an operator-facing message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrCooldownActive)
// works for errors built with a custom message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

var (
	ErrMalformedPayload    = &Error{Code: CodeMalformedPayload, Message: "scan payload does not carry a participant id"}
	ErrParticipantNotFound = &Error{Code: CodeParticipantNotFound, Message: "participant not found"}
	ErrParticipantInactive = &Error{Code: CodeParticipantInactive, Message: "participant account is deactivated"}
	ErrNotAParticipant     = &Error{Code: CodeNotAParticipant, Message: "user is not a participant"}
	ErrNoEligibleTargets   = &Error{Code: CodeNoEligibleTargets, Message: "participant is not registered for the selected targets"}
	ErrCooldownActive      = &Error{Code: CodeCooldownActive, Message: "terminal cooldown active"}
	ErrPartialRecording    = &Error{Code: CodePartialRecordingFailure, Message: "attendance recorded for some targets only"}
	ErrStoreUnavailable    = &Error{Code: CodeStoreUnavailable, Message: "attendance store unavailable"}
	ErrNoTargetsSelected   = &Error{Code: CodeNoTargetsSelected, Message: "select at least one event or workshop"}
	ErrSessionNotFound     = &Error{Code: CodeSessionNotFound, Message: "scan session not found"}
	ErrSessionStopped      = &Error{Code: CodeSessionStopped, Message: "scan session stopped"}
	ErrCameraUnavailable   = &Error{Code: CodeCameraUnavailable, Message: "camera unavailable"}
)

// CodeOf extracts the Code of err, or CodeStoreUnavailable for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStoreUnavailable
}
