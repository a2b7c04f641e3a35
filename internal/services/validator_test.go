package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

func newTestValidator(t *testing.T) OutputValidator {
	t.Helper()
	v, err := NewOutputValidator()
	require.NoError(t, err)
	return v
}

func TestValidateCV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantField string
	}{
		{name: "valid", raw: `{"technical_skills":3,"experience_level":5,"achievements":1,"cultural_fit":4}`},
		{name: "valid with notes and extras", raw: `{"technical_skills":3,"experience_level":5,"achievements":1,"cultural_fit":4,"notes":"solid","confidence":0.8}`},
		{name: "score above range", raw: `{"technical_skills":6,"experience_level":5,"achievements":1,"cultural_fit":4}`, wantField: "technical_skills"},
		{name: "score below range", raw: `{"technical_skills":3,"experience_level":0,"achievements":1,"cultural_fit":4}`, wantField: "experience_level"},
		{name: "missing achievements", raw: `{"technical_skills":3,"experience_level":5,"cultural_fit":4}`, wantField: "achievements"},
		{name: "fractional score", raw: `{"technical_skills":3.5,"experience_level":5,"achievements":1,"cultural_fit":4}`, wantField: "technical_skills"},
		{name: "notes not a string", raw: `{"technical_skills":3,"experience_level":5,"achievements":1,"cultural_fit":4,"notes":12}`, wantField: "notes"},
		{name: "not an object", raw: `[1,2,3]`, wantField: "(root)"},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eval, err := v.ValidateCV(json.RawMessage(tt.raw))
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, 3, eval.TechnicalSkills)
				assert.Equal(t, 4, eval.CulturalFit)
				return
			}

			var violation *SchemaViolation
			require.True(t, errors.As(err, &violation), "got %v", err)
			assert.Equal(t, SchemaCVEvaluation, violation.Schema)

			fields := make([]string, 0, len(violation.Fields))
			for _, f := range violation.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateProject(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)

	eval, err := v.ValidateProject(json.RawMessage(`{"correctness":4,"code_quality":3,"resilience":5,"documentation":2,"creativity":1,"notes":"good retries"}`))
	require.NoError(t, err)
	assert.Equal(t, &models.ProjectEvaluation{
		Correctness: 4, CodeQuality: 3, Resilience: 5, Documentation: 2, Creativity: 1, Notes: "good retries",
	}, eval)

	_, err = v.ValidateProject(json.RawMessage(`{"correctness":4,"code_quality":3,"resilience":5,"documentation":2}`))
	var violation *SchemaViolation
	require.True(t, errors.As(err, &violation))
	assert.Contains(t, violation.Error(), "creativity")
}

func TestValidateEmptyDocument(t *testing.T) {
	t.Parallel()

	_, err := newTestValidator(t).ValidateCV(nil)
	var violation *SchemaViolation
	assert.True(t, errors.As(err, &violation))
}
