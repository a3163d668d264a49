// Package apierr defines the error taxonomy returned by the queue, engine and
// registry. Every error carries a stable machine-readable code.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups codes by how the caller should react.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPrecondition
	KindNotFound
	KindConflict
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind onto the status code used by the HTTP binding.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindPrecondition, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

const (
	CodeBadRequest            = "BAD_REQUEST"
	CodeInvalidMove           = "INVALID_MOVE"
	CodeInvalidShootDirection = "INVALID_SHOOT_DIRECTION"
	CodeAlreadyQueued         = "ALREADY_QUEUED"
	CodeAlreadyInMatch        = "ALREADY_IN_MATCH"
	CodeNotVerified           = "NOT_VERIFIED"
	CodeNotAParticipant       = "NOT_A_PARTICIPANT"
	CodeAlreadyEliminated     = "ALREADY_ELIMINATED"
	CodeDuplicateSubmission   = "DUPLICATE_SUBMISSION"
	CodeMatchNotActive        = "MATCH_NOT_ACTIVE"
	CodeAgentNotFound         = "AGENT_NOT_FOUND"
	CodeMatchNotFound         = "MATCH_NOT_FOUND"
	CodeNameTaken             = "NAME_TAKEN"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeAlreadyResolved       = "ALREADY_RESOLVED"
	CodeInternal              = "INTERNAL"
)

// Error is a classified, user-visible error.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	MatchID string `json:"matchId,omitempty"`
	Err     error  `json:"-"`
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

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of e with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

var (
	ErrBadRequest            = &Error{Kind: KindValidation, Code: CodeBadRequest, Message: "malformed request"}
	ErrInvalidMove           = &Error{Kind: KindValidation, Code: CodeInvalidMove, Message: "move must be one of north, south, east, west, stay"}
	ErrInvalidShootDirection = &Error{Kind: KindValidation, Code: CodeInvalidShootDirection, Message: "shoot must be null or one of north, south, east, west"}
	ErrAlreadyQueued         = &Error{Kind: KindPrecondition, Code: CodeAlreadyQueued, Message: "agent is already in the queue"}
	ErrAlreadyInMatch        = &Error{Kind: KindPrecondition, Code: CodeAlreadyInMatch, Message: "agent is already in an active match"}
	ErrNotVerified           = &Error{Kind: KindPrecondition, Code: CodeNotVerified, Message: "agent must be verified to join"}
	ErrNotAParticipant       = &Error{Kind: KindPrecondition, Code: CodeNotAParticipant, Message: "agent is not a participant in this match"}
	ErrAlreadyEliminated     = &Error{Kind: KindPrecondition, Code: CodeAlreadyEliminated, Message: "agent has been eliminated"}
	ErrDuplicateSubmission   = &Error{Kind: KindPrecondition, Code: CodeDuplicateSubmission, Message: "action already submitted for this tick"}
	ErrMatchNotActive        = &Error{Kind: KindPrecondition, Code: CodeMatchNotActive, Message: "match is not active"}
	ErrAgentNotFound         = &Error{Kind: KindNotFound, Code: CodeAgentNotFound, Message: "agent not found"}
	ErrMatchNotFound         = &Error{Kind: KindNotFound, Code: CodeMatchNotFound, Message: "match not found"}
	ErrNameTaken             = &Error{Kind: KindConflict, Code: CodeNameTaken, Message: "name is already registered"}
	ErrAlreadyResolved       = &Error{Kind: KindConflict, Code: CodeAlreadyResolved, Message: "tick was already resolved"}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: "missing or invalid credentials"}
)

// AlreadyInMatch reports the match the agent is already playing in.
func AlreadyInMatch(matchID string) *Error {
	c := *ErrAlreadyInMatch
	c.MatchID = matchID
	return &c
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// From classifies any error, wrapping unknown ones as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	return From(err).Kind
}
