package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", AlreadyDecided("done"), KindAlreadyDecided},
		{"wrapped by fmt", fmt.Errorf("approve: %w", NotAuthorized("nope")), KindNotAuthorized},
		{"plain error", errors.New("boom"), KindInternal},
		{"wrap keeps kind", Wrap(errors.New("db"), KindNotFound, "machine not found"), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, KindDuplicatePendingRequest.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindNotAuthorized.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Kind("SOMETHING_ELSE").HTTPStatus())
}

func TestDuplicatePendingRequestParams(t *testing.T) {
	err := DuplicatePendingRequest("m-1", "r-9")
	require.Equal(t, KindDuplicatePendingRequest, err.Kind)
	assert.Equal(t, "m-1", err.Params["machine_id"])
	assert.Equal(t, "r-9", err.Params["request_id"])

	inner := errors.New("unique violation")
	wrapped := Wrap(inner, KindDuplicatePendingRequest, "duplicate")
	assert.True(t, errors.Is(wrapped, inner))
	assert.True(t, Is(wrapped, KindDuplicatePendingRequest))
	assert.False(t, Is(nil, KindDuplicatePendingRequest))
}
