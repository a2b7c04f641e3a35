package services

import (
	"math"

	"alfredoptarigan/cv-eval-pipeline/internal/models"
)

// Scorer turns validated rubric scores into the reported numbers. Weights are
// used as given; a group that does not sum to 1 shifts the output range.
type Scorer struct {
	cv      models.CVWeights
	project models.ProjectWeights
}

func NewScorer(cv models.CVWeights, project models.ProjectWeights) *Scorer {
	return &Scorer{cv: cv, project: project}
}

func NewDefaultScorer() *Scorer {
	return NewScorer(models.DefaultCVWeights(), models.DefaultProjectWeights())
}

// CVMatchRate returns a percentage with one decimal place.
func (s *Scorer) CVMatchRate(e models.CVEvaluation) float64 {
	weighted := float64(e.TechnicalSkills)*s.cv.TechnicalSkills +
		float64(e.ExperienceLevel)*s.cv.ExperienceLevel +
		float64(e.Achievements)*s.cv.Achievements +
		float64(e.CulturalFit)*s.cv.CulturalFit
	return roundTo1(weighted / 5 * 100)
}

// ProjectScore returns a 0-10 score with one decimal place.
func (s *Scorer) ProjectScore(e models.ProjectEvaluation) float64 {
	weighted := float64(e.Correctness)*s.project.Correctness +
		float64(e.CodeQuality)*s.project.CodeQuality +
		float64(e.Resilience)*s.project.Resilience +
		float64(e.Documentation)*s.project.Documentation +
		float64(e.Creativity)*s.project.Creativity
	return roundTo1(weighted / 5 * 10)
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
