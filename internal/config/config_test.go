package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load(viper.New(), "testdata/missing.env")
	require.NoError(t, err)

	assert.False(t, cfg.EnvFileLoaded)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "pgvector", cfg.Knowledge.Backend)
	assert.Equal(t, 5, cfg.Knowledge.TopK)
	assert.Equal(t, 4, cfg.Worker.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.RetryBaseDelay)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "job_briefing", cfg.Chunking.DocumentType)
	assert.Equal(t, models.DefaultCVWeights(), cfg.Scoring.CVWeights)
	assert.Equal(t, models.DefaultProjectWeights(), cfg.Scoring.ProjectWeights)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=ai_cv_evaluator sslmode=disable", cfg.GetDatabaseDSN())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("QUEUE_DRIVER", "amqp")
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("CV_CONTEXT_TYPES", "job_description, cv_rubric,")

	cfg, err := Load(viper.New(), "testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, "amqp", cfg.Queue.Driver)
	assert.Equal(t, 8, cfg.Knowledge.TopK)
	assert.Equal(t, []string{"job_description", "cv_rubric"}, cfg.Knowledge.CVContextTypes)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{
			name: "missing api key",
			env:  map[string]string{},
			msg:  "GeminiAPIKey",
		},
		{
			name: "overlap not below chunk size",
			env:  map[string]string{"GEMINI_API_KEY": "k", "CHUNK_SIZE": "100", "CHUNK_OVERLAP": "100"},
			msg:  "ChunkOverlap",
		},
		{
			name: "unknown provider",
			env:  map[string]string{"GEMINI_API_KEY": "k", "LLM_PROVIDER": "mystery"},
			msg:  "Provider",
		},
		{
			name: "cv weights above one",
			env:  map[string]string{"GEMINI_API_KEY": "k", "CV_WEIGHT_TECHNICAL_SKILLS": "0.9"},
			msg:  "cv weights sum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(viper.New(), "testdata/missing.env")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestWarningsForLowWeightSum(t *testing.T) {
	cfg := &Config{
		EnvFileLoaded: true,
		Scoring: ScoringConfig{
			CVWeights:      models.CVWeights{TechnicalSkills: 0.5, ExperienceLevel: 0.2},
			ProjectWeights: models.DefaultProjectWeights(),
		},
	}

	warnings := cfg.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "cv weights sum to 0.7000")
}
