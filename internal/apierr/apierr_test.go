package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByCode(t *testing.T) {
	err := AlreadyInMatch("m-1")
	assert.ErrorIs(t, err, ErrAlreadyInMatch)
	assert.Equal(t, "m-1", err.MatchID)
	assert.NotErrorIs(t, err, ErrAlreadyQueued)

	wrapped := fmt.Errorf("joining: %w", ErrInvalidMove.Withf("bad move %q", "up"))
	assert.ErrorIs(t, wrapped, ErrInvalidMove)
	assert.Equal(t, KindValidation, KindOf(wrapped))
}

func TestWithf_DoesNotMutateSentinel(t *testing.T) {
	_ = ErrBadRequest.Withf("field %s missing", "move")
	assert.Equal(t, "malformed request", ErrBadRequest.Message)
}

func TestFrom_WrapsUnknownAsInternal(t *testing.T) {
	cause := errors.New("disk on fire")
	e := From(cause)
	assert.Equal(t, CodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)
	assert.Nil(t, From(nil))
}

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ErrInvalidMove, http.StatusBadRequest},
		{ErrDuplicateSubmission, http.StatusConflict},
		{ErrMatchNotFound, http.StatusNotFound},
		{ErrNameTaken, http.StatusConflict},
		{ErrUnauthorized, http.StatusUnauthorized},
		{Internal(errors.New("x")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Kind.HTTPStatus())
		})
	}
}
