package validation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupForm struct {
	RefName string `json:"ref_name" validate:"required,max=10"`
	Email   string `json:"email" validate:"required,email"`
	Kind    string `json:"kind" validate:"omitempty,oneof=standard junior"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name       string
		form       signupForm
		wantFields []string
	}{
		{
			name: "valid form",
			form: signupForm{RefName: "Jane", Email: "jane@example.com", Kind: "junior"},
		},
		{
			name:       "missing name",
			form:       signupForm{Email: "jane@example.com"},
			wantFields: []string{"ref_name"},
		},
		{
			name:       "bad email and long name",
			form:       signupForm{RefName: "Janeeeeeeeeeeeee", Email: "jane@"},
			wantFields: []string{"ref_name", "email"},
		},
		{
			name:       "unknown kind",
			form:       signupForm{RefName: "Jane", Email: "jane@example.com", Kind: "special"},
			wantFields: []string{"kind"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.form)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var errs Errors
			require.ErrorAs(t, err, &errs)
			var fields []string
			for _, fe := range errs {
				fields = append(fields, fe.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestErrorsOrNil(t *testing.T) {
	var errs Errors
	assert.NoError(t, errs.OrNil())

	errs = append(errs, ValidationError{Field: "special", Message: "is required"})
	err := errs.OrNil()
	require.Error(t, err)
	assert.Equal(t, "special: is required", err.Error())
}

func TestIsValidationError(t *testing.T) {
	single := ValidationError{Field: "email", Message: "invalid email format"}
	multi := Errors{single}

	assert.True(t, IsValidationError(single))
	assert.True(t, IsValidationError(multi))
	assert.True(t, IsValidationError(fmt.Errorf("failed to save: %w", multi)))
	assert.False(t, IsValidationError(errors.New("boom")))
	assert.False(t, IsValidationError(nil))
}

func TestOneOf(t *testing.T) {
	methods := []string{"cash", "card"}

	assert.NoError(t, OneOf("payment_method", "cash", methods))

	err := OneOf("payment_method", "cheque", methods)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cash, card")
}
