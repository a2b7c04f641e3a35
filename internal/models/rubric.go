package models

// CVEvaluation is the validated CV rubric output. Scores are integers in [1,5].
type CVEvaluation struct {
	TechnicalSkills int    `json:"technical_skills"`
	ExperienceLevel int    `json:"experience_level"`
	Achievements    int    `json:"achievements"`
	CulturalFit     int    `json:"cultural_fit"`
	Notes           string `json:"notes,omitempty"`
}

// ProjectEvaluation is the validated project rubric output. Scores are integers in [1,5].
type ProjectEvaluation struct {
	Correctness   int    `json:"correctness"`
	CodeQuality   int    `json:"code_quality"`
	Resilience    int    `json:"resilience"`
	Documentation int    `json:"documentation"`
	Creativity    int    `json:"creativity"`
	Notes         string `json:"notes,omitempty"`
}

type CVWeights struct {
	TechnicalSkills float64 `mapstructure:"technical_skills" validate:"gte=0,lte=1"`
	ExperienceLevel float64 `mapstructure:"experience_level" validate:"gte=0,lte=1"`
	Achievements    float64 `mapstructure:"achievements" validate:"gte=0,lte=1"`
	CulturalFit     float64 `mapstructure:"cultural_fit" validate:"gte=0,lte=1"`
}

func (w CVWeights) Sum() float64 {
	return w.TechnicalSkills + w.ExperienceLevel + w.Achievements + w.CulturalFit
}

type ProjectWeights struct {
	Correctness   float64 `mapstructure:"correctness" validate:"gte=0,lte=1"`
	CodeQuality   float64 `mapstructure:"code_quality" validate:"gte=0,lte=1"`
	Resilience    float64 `mapstructure:"resilience" validate:"gte=0,lte=1"`
	Documentation float64 `mapstructure:"documentation" validate:"gte=0,lte=1"`
	Creativity    float64 `mapstructure:"creativity" validate:"gte=0,lte=1"`
}

func (w ProjectWeights) Sum() float64 {
	return w.Correctness + w.CodeQuality + w.Resilience + w.Documentation + w.Creativity
}

func DefaultCVWeights() CVWeights {
	return CVWeights{TechnicalSkills: 0.4, ExperienceLevel: 0.25, Achievements: 0.2, CulturalFit: 0.15}
}

func DefaultProjectWeights() ProjectWeights {
	return ProjectWeights{Correctness: 0.3, CodeQuality: 0.25, Resilience: 0.2, Documentation: 0.15, Creativity: 0.1}
}
