package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"field not found", fmt.Errorf("facet: %w", ErrFieldNotFound), http.StatusBadRequest},
		{"invalid limit", ErrInvalidLimit, http.StatusBadRequest},
		{"invalid address", fmt.Errorf("doc: %w", ErrInvalidAddress), http.StatusNotFound},
		{"scan failure", ErrScanFailure, http.StatusInternalServerError},
		{"storage", ErrStorage, http.StatusInternalServerError},
		{"closed", ErrIndexClosed, http.StatusServiceUnavailable},
		{"app error wins", New(ErrScanFailure, http.StatusTeapot, "odd"), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "bad facet %q", "x")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, `invalid input: bad facet "x"`, err.Error())
}
