package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrTypeValidation, "only read statements are permitted")

	assert.Equal(t, ErrTypeValidation, err.Type)
	assert.Equal(t, "only read statements are permitted", err.Message)
	assert.NoError(t, err.Cause)
	assert.Empty(t, err.Detail())
}

func TestWrapf(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrapf(originalErr, ErrTypeExecution, "failed to connect to %s:%d", "localhost", 5432)

	assert.Equal(t, ErrTypeExecution, wrappedErr.Type)
	assert.Equal(t, "failed to connect to localhost:5432", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
	assert.Equal(t, "connection refused", wrappedErr.Detail())
	assert.ErrorIs(t, wrappedErr, originalErr)
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(ErrTypeValidation, "cannot parse statement"),
			expected: "validation: cannot parse statement",
		},
		{
			name:     "error with cause",
			err:      Wrap(errors.New("timeout"), ErrTypeExecution, "query failed"),
			expected: "execution: query failed (caused by: timeout)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestIsTypeThroughWrapping(t *testing.T) {
	base := NewNotFound("analytics")
	wrapped := fmt.Errorf("lookup: %w", base)

	assert.True(t, IsType(wrapped, ErrTypeNotFound))
	assert.False(t, IsType(wrapped, ErrTypeValidation))
	assert.Equal(t, ErrTypeNotFound, GetType(wrapped))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))

	structErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "database connection 'analytics' does not exist", structErr.Message)
}

func TestNewUnsupportedEngine(t *testing.T) {
	err := NewUnsupportedEngine("sqlserver")

	assert.Equal(t, ErrTypeUnsupportedEngine, err.Type)
	assert.Contains(t, err.Message, "sqlserver")
	assert.NotEmpty(t, err.Suggestions)
}
