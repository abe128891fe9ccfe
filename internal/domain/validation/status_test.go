package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_ParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected Status
	}{
		{name: "created", input: "CREATED", expected: StatusCreated},
		{name: "pending validation", input: "PENDING_VALIDATION", expected: StatusPendingValidation},
		{name: "integration in progress", input: "INTEGRATION_IN_PROGRESS", expected: StatusIntegrationInProgress},
		{name: "integrated", input: "INTEGRATED", expected: StatusIntegrated},
		{name: "error", input: "ERROR", expected: StatusError},
		{name: "unknown value", input: "SOMETHING_ELSE", expected: StatusUnspecified},
		{name: "empty value", input: "", expected: StatusUnspecified},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ParseStatus(tt.input))
		})
	}
}

func TestStatus_IsValidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{name: "created to pending validation", from: StatusCreated, to: StatusPendingValidation, allowed: true},
		{name: "created to error", from: StatusCreated, to: StatusError, allowed: true},
		{name: "created to integration in progress", from: StatusCreated, to: StatusIntegrationInProgress, allowed: false},
		{name: "created to integrated", from: StatusCreated, to: StatusIntegrated, allowed: false},
		{name: "pending validation to integration in progress", from: StatusPendingValidation, to: StatusIntegrationInProgress, allowed: true},
		{name: "pending validation to error", from: StatusPendingValidation, to: StatusError, allowed: false},
		{name: "pending validation to created", from: StatusPendingValidation, to: StatusCreated, allowed: false},
		{name: "integration in progress to integrated", from: StatusIntegrationInProgress, to: StatusIntegrated, allowed: true},
		{name: "integration in progress to error", from: StatusIntegrationInProgress, to: StatusError, allowed: true},
		{name: "integration in progress to pending validation", from: StatusIntegrationInProgress, to: StatusPendingValidation, allowed: false},
		{name: "integrated is terminal", from: StatusIntegrated, to: StatusError, allowed: false},
		{name: "error is terminal", from: StatusError, to: StatusCreated, allowed: false},
		{name: "unspecified cannot transition", from: StatusUnspecified, to: StatusCreated, allowed: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.from.validateTransition(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusCreated.IsTerminal())
	assert.False(t, StatusPendingValidation.IsTerminal())
	assert.False(t, StatusIntegrationInProgress.IsTerminal())
	assert.True(t, StatusIntegrated.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
}
