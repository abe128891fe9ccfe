package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      Identity
		action  Action
		allowed bool
	}{
		{
			name:    "creator can create",
			id:      Identity{ID: "u1", Groups: []string{"creators"}},
			action:  ActionCreateTask,
			allowed: true,
		},
		{
			name:    "admin can create",
			id:      Identity{ID: "u1", Groups: []string{"admins"}},
			action:  ActionCreateTask,
			allowed: true,
		},
		{
			name:    "validator cannot create",
			id:      Identity{ID: "u1", Groups: []string{"validators"}},
			action:  ActionCreateTask,
			allowed: false,
		},
		{
			name:    "validator can validate",
			id:      Identity{ID: "u1", Groups: []string{"validators"}},
			action:  ActionValidate,
			allowed: true,
		},
		{
			name:    "admin can validate",
			id:      Identity{ID: "u1", Groups: []string{"admins"}},
			action:  ActionValidate,
			allowed: true,
		},
		{
			name:    "creator cannot validate",
			id:      Identity{ID: "u1", Groups: []string{"creators"}},
			action:  ActionValidate,
			allowed: false,
		},
		{
			name:    "no groups cannot create",
			id:      Identity{ID: "u1"},
			action:  ActionCreateTask,
			allowed: false,
		},
		{
			name:    "any authenticated identity can read",
			id:      Identity{ID: "u1"},
			action:  ActionRead,
			allowed: true,
		},
		{
			name:    "anonymous cannot read",
			id:      Identity{},
			action:  ActionRead,
			allowed: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.allowed, Allowed(tt.id, tt.action))
		})
	}
}

func TestParseOutcome(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"SUCCESS", "FAILURE", "IN_PROGRESS"} {
		o, err := ParseOutcome(valid)
		assert.NoError(t, err)
		assert.Equal(t, valid, o.String())
	}

	_, err := ParseOutcome("DONE")
	assert.Error(t, err)

	_, err = ParseOutcome("")
	assert.Error(t, err)
}
