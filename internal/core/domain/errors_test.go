package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{fmt.Errorf("%w: book b1", ErrNotFound), CodeNotFound},
		{fmt.Errorf("outer: %w", fmt.Errorf("%w: taken", ErrConflict)), CodeConflict},
		{ErrAuthorization, CodeForbidden},
		{ErrState, CodeState},
		{ErrBusy, CodeBusy},
		{ErrNetwork, CodeNetwork},
		{errors.New("disk full"), CodeInternal},
		{nil, CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), "%v", tt.err)
	}
}

func TestFromCode(t *testing.T) {
	err := FromCode(CodeConflict, "book b1 is Pending")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "book b1 is Pending")

	assert.Equal(t, ErrState, FromCode(CodeState, ""))

	unknown := FromCode("TEAPOT", "")
	assert.ErrorIs(t, unknown, ErrNetwork)
	assert.False(t, IsLendingError(errors.New("x")))
	assert.True(t, IsLendingError(unknown))
}
