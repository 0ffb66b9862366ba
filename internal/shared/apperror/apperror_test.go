package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errBookingGone = New(KindNotFound, http.StatusNotFound, "booking not found")

func TestIsMatchesSentinelAndKind(t *testing.T) {
	wrapped := fmt.Errorf("load booking 42: %w", errBookingGone)

	assert.ErrorIs(t, wrapped, errBookingGone)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrPrecondition)

	other := New(KindNotFound, http.StatusNotFound, "refund not found")
	assert.NotErrorIs(t, wrapped, other)
}

func TestHTTPStatusAndMessage(t *testing.T) {
	wrapped := fmt.Errorf("cancel: %w", New(KindPrecondition, http.StatusConflict, "booking already cancelled"))

	assert.Equal(t, http.StatusConflict, HTTPStatus(wrapped))
	assert.Equal(t, "booking already cancelled", Message(wrapped))

	plain := errors.New("dial tcp: refused")
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(plain))
	assert.Equal(t, "internal server error", Message(plain))

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindPrecondition, kind)
}
