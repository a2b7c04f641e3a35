package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

func TestSafeParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "strict", raw: `{"a":1}`, want: `{"a":1}`},
		{name: "surrounding whitespace", raw: "\n  {\"a\":1}\n", want: `{"a":1}`},
		{name: "prose around object", raw: `noise {"a":1} noise`, want: `{"a":1}`},
		{name: "markdown fence", raw: "```json\n{\"a\":{\"b\":2}}\n```", want: `{"a":{"b":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SafeParse(tt.raw)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestSafeParseRejects(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "not json at all", `{"a": }`, `} backwards {`} {
		_, err := SafeParse(raw)
		var malformed *MalformedOutputError
		assert.ErrorAs(t, err, &malformed, "input %q", raw)
	}
}

func TestRefineSummaryAcceptsMissingEvaluations(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{respond: func(string, GenerationParams) (string, error) {
		return "\nOnly a project was submitted.\n", nil
	}}
	o := NewLLMOrchestrator(gen, noWaitRetry(1), zap.NewNop())

	out, err := o.RefineSummary(context.Background(), nil, &models.ProjectEvaluation{Correctness: 4})
	require.NoError(t, err)
	assert.Equal(t, "Only a project was submitted.", out)

	require.Len(t, gen.calls, 1)
	assert.Contains(t, gen.calls[0].Prompt, "CV_SCORE_JSON:\nnull")
	assert.Contains(t, gen.calls[0].Prompt, `"correctness":4`)
	assert.False(t, gen.calls[0].Params.JSONOutput)
}

func TestScoreCVReturnsLastErrorAfterRetries(t *testing.T) {
	t.Parallel()

	var last error
	gen := &fakeGenerator{}
	gen.respond = func(string, GenerationParams) (string, error) {
		last = errors.New("attempt failed")
		return "", last
	}
	o := NewLLMOrchestrator(gen, noWaitRetry(3), zap.NewNop())

	_, err := o.ScoreCV(context.Background(), json.RawMessage(`{}`), JobContext{})
	assert.Same(t, last, err)
	assert.Equal(t, 3, gen.callCount())
}
