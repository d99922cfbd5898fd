package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	v := New("AM")

	got, err := v.NormalizeEmail("  Anna.Petrosyan@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "anna.petrosyan@example.com", got)

	got, err = v.NormalizeEmail("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = v.NormalizeEmail("not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestNormalizePhone(t *testing.T) {
	v := New("AM")

	international, err := v.NormalizePhone("+37498123456")
	require.NoError(t, err)
	assert.Equal(t, "+37498123456", international)

	spaced, err := v.NormalizePhone("+374 98 12-34-56")
	require.NoError(t, err)
	assert.Equal(t, international, spaced)

	_, err = v.NormalizePhone("12")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	blank, err := v.NormalizePhone("   ")
	require.NoError(t, err)
	assert.Empty(t, blank)
}

func TestStructUsesBindingTags(t *testing.T) {
	type request struct {
		Name  string `binding:"required"`
		Phone string `binding:"omitempty,phone"`
	}
	v := New("AM")

	assert.NoError(t, v.Struct(request{Name: "Ani", Phone: "+37498123456"}))
	assert.Error(t, v.Struct(request{}))
	assert.Error(t, v.Struct(request{Name: "Ani", Phone: "x"}))
}
