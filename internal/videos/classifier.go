package videos

import (
	"context"
	"math/rand/v2"

	"github.com/streamsafe/backend/internal/models"
)

// DefaultSafeProbability is the share of videos the placeholder policy marks safe.
const DefaultSafeProbability = 0.7

// Classifier decides the sensitivity verdict of an analysed video.
type Classifier interface {
	Classify(ctx context.Context, videoID string) (models.SensitivityStatus, error)
}

// RandomClassifier is the placeholder policy: safe with probability
// SafeProbability, flagged otherwise.
type RandomClassifier struct {
	SafeProbability float64
	// Float returns a value in [0, 1). Defaults to math/rand/v2.
	Float func() float64
}

// NewRandomClassifier returns a classifier with the given safe probability.
func NewRandomClassifier(safeProbability float64) *RandomClassifier {
	return &RandomClassifier{SafeProbability: safeProbability, Float: rand.Float64}
}

// Classify draws one verdict.
func (c *RandomClassifier) Classify(context.Context, string) (models.SensitivityStatus, error) {
	draw := rand.Float64
	if c.Float != nil {
		draw = c.Float
	}
	if draw() < c.SafeProbability {
		return models.SensitivitySafe, nil
	}
	return models.SensitivityFlagged, nil
}
