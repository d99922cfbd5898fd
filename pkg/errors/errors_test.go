package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrappedSentinel(t *testing.T) {
	sentinel := New(ErrAmountRequired, "amount is required")
	wrapped := fmt.Errorf("transition appointment: %w", sentinel)

	assert.Equal(t, ErrAmountRequired, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, ErrAmountRequired))
	assert.False(t, HasCode(wrapped, ErrNotFound))
	assert.True(t, stderrors.Is(wrapped, sentinel))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrInternal, CodeOf(stderrors.New("boom")))
	assert.Equal(t, ErrInternal, CodeOf(nil))
}

func TestAppErrorMessage(t *testing.T) {
	err := NotFound("appointment", stderrors.New("no rows"))
	assert.Equal(t, "appointment not found: no rows", err.Error())
	assert.Equal(t, "not_found", err.Code.String())
	assert.Equal(t, "scheduling_conflict", ErrSchedulingConflict.String())
}
