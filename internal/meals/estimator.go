package meals

import (
	"context"
	"time"
)

// EstimateInput carries the evidence handed to the estimator. Image takes
// precedence over Text when both are present; Corrections refine a previous
// analysis during reanalysis.
type EstimateInput struct {
	Image       []byte
	Text        string
	Corrections string
}

// Estimate is the structured best-effort result of a nutrition analysis.
// Values are already normalized: the meal type is within the enumeration and
// numeric fields default to zero when the upstream reply omitted them.
type Estimate struct {
	Calories   int64
	Protein    int64
	Fat        int64
	Carbs      int64
	Fiber      int64
	Sugar      int64
	Sodium     int64
	MealType   MealType
	ConsumedAt time.Time
	Notes      string
}

// Estimator produces nutritional estimates from an image or description.
// Implementations are best-effort collaborators; the pipeline treats any
// returned error as recoverable.
type Estimator interface {
	Estimate(ctx context.Context, input EstimateInput) (Estimate, error)
}
