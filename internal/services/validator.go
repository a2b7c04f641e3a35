package services

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

const (
	SchemaCVEvaluation      = "cv_evaluation"
	SchemaProjectEvaluation = "project_evaluation"
)

var (
	//go:embed schemas/cv_evaluation.json
	cvEvaluationSchema []byte

	//go:embed schemas/project_evaluation.json
	projectEvaluationSchema []byte
)

// OutputValidator checks rubric outputs against their JSON schema before use.
type OutputValidator interface {
	ValidateCV(raw json.RawMessage) (*models.CVEvaluation, error)
	ValidateProject(raw json.RawMessage) (*models.ProjectEvaluation, error)
}

type outputValidator struct {
	cv      *gojsonschema.Schema
	project *gojsonschema.Schema
}

func NewOutputValidator() (OutputValidator, error) {
	cv, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(cvEvaluationSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", SchemaCVEvaluation, err)
	}

	project, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(projectEvaluationSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", SchemaProjectEvaluation, err)
	}

	return &outputValidator{cv: cv, project: project}, nil
}

// ValidateCV implements OutputValidator.
func (v *outputValidator) ValidateCV(raw json.RawMessage) (*models.CVEvaluation, error) {
	if err := validateAgainst(v.cv, SchemaCVEvaluation, raw); err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(raw)
	return &models.CVEvaluation{
		TechnicalSkills: int(doc.Get("technical_skills").Int()),
		ExperienceLevel: int(doc.Get("experience_level").Int()),
		Achievements:    int(doc.Get("achievements").Int()),
		CulturalFit:     int(doc.Get("cultural_fit").Int()),
		Notes:           doc.Get("notes").String(),
	}, nil
}

// ValidateProject implements OutputValidator.
func (v *outputValidator) ValidateProject(raw json.RawMessage) (*models.ProjectEvaluation, error) {
	if err := validateAgainst(v.project, SchemaProjectEvaluation, raw); err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(raw)
	return &models.ProjectEvaluation{
		Correctness:   int(doc.Get("correctness").Int()),
		CodeQuality:   int(doc.Get("code_quality").Int()),
		Resilience:    int(doc.Get("resilience").Int()),
		Documentation: int(doc.Get("documentation").Int()),
		Creativity:    int(doc.Get("creativity").Int()),
		Notes:         doc.Get("notes").String(),
	}, nil
}

func validateAgainst(schema *gojsonschema.Schema, name string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return &SchemaViolation{Schema: name, Fields: []FieldViolation{{Field: "(root)", Message: "empty document"}}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &SchemaViolation{Schema: name, Fields: []FieldViolation{{Field: "(root)", Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}

	violation := &SchemaViolation{Schema: name}
	for _, re := range result.Errors() {
		violation.Fields = append(violation.Fields, FieldViolation{
			Field:   violationField(re),
			Message: re.Description(),
		})
	}
	return violation
}

// violationField names the offending property. Missing properties are reported
// by gojsonschema against their parent, so the property name is taken from details.
func violationField(re gojsonschema.ResultError) string {
	field := re.Field()
	if prop, ok := re.Details()["property"].(string); ok && prop != "" {
		if field == "" || field == "(root)" {
			return prop
		}
		return field + "." + prop
	}
	return field
}
