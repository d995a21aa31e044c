package meals

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// CreateFromImage runs the image-flow ingestion: persist the upload, fill the
// gaps from the estimator, merge, and write the normalized record. A storage
// failure aborts the operation before anything reaches the ledger; an
// estimator failure never does.
func (s *Service) CreateFromImage(ctx context.Context, userID string, in ImageIngestion) (Meal, error) {
	if userID == "" {
		return Meal{}, ErrInvalidUserID
	}
	if len(in.Image) == 0 {
		return Meal{}, ErrMissingImage
	}

	imagePath, err := s.store.Put(userID, in.Image, in.Filename)
	if err != nil {
		s.logError(opIngest, "image_store_failed", err, zap.String("user_id", userID))
		return Meal{}, newServiceError(opIngest, "image_store_failed", err)
	}

	estimate := s.estimateIfNeeded(ctx, in.Fields, EstimateInput{Image: in.Image})

	meal := Meal{UserID: userID, ImagePath: imagePath}
	s.mergeIntoMeal(&meal, in.Fields, estimate)

	if err := s.insert(ctx, &meal); err != nil {
		// The upload already landed; the orphan is acceptable and only logged.
		s.logger.Warn("orphaned image after failed meal insert",
			zap.String("operation", opIngest),
			zap.String("user_id", userID),
			zap.String("image_path", imagePath))
		return Meal{}, err
	}
	return meal, nil
}

// CreateFromText runs the text-flow ingestion using the description as the
// estimator's evidence.
func (s *Service) CreateFromText(ctx context.Context, userID string, in TextIngestion) (Meal, error) {
	if userID == "" {
		return Meal{}, ErrInvalidUserID
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return Meal{}, ErrMissingDescription
	}

	estimate := s.estimateIfNeeded(ctx, in.Fields, EstimateInput{Text: description})

	meal := Meal{UserID: userID}
	s.mergeIntoMeal(&meal, in.Fields, estimate)

	if err := s.insert(ctx, &meal); err != nil {
		return Meal{}, err
	}
	return meal, nil
}

// Reanalyze re-runs the estimator for an existing meal with user corrections.
// Explicit field overrides win over the fresh estimate, which wins over the
// previously stored values. The stored consumed-at is kept unless explicitly
// overridden; reanalysis does not move the eating time.
func (s *Service) Reanalyze(ctx context.Context, userID, mealID, corrections string, overrides MealFields) (Meal, error) {
	meal, err := s.Get(ctx, userID, mealID)
	if err != nil {
		return Meal{}, err
	}

	input := EstimateInput{Corrections: strings.TrimSpace(corrections)}
	if meal.ImagePath != "" {
		image, readErr := s.store.Read(meal.ImagePath)
		if readErr != nil {
			s.logger.Warn("stored image unavailable for reanalysis",
				zap.String("operation", opReanalyze),
				zap.String("user_id", userID),
				zap.String("meal_id", mealID),
				zap.Error(readErr))
		} else {
			input.Image = image
		}
	}
	if len(input.Image) == 0 {
		input.Text = meal.Notes
	}

	estimate, estimateErr := s.estimator.Estimate(ctx, input)
	if estimateErr != nil {
		s.logger.Warn("estimator failed during reanalysis, keeping stored values",
			zap.String("operation", opReanalyze),
			zap.String("user_id", userID),
			zap.String("meal_id", mealID),
			zap.Error(estimateErr))
	} else {
		meal.Calories = estimate.Calories
		meal.ProteinGrams = estimate.Protein
		meal.FatGrams = estimate.Fat
		meal.CarbsGrams = estimate.Carbs
		meal.FiberGrams = estimate.Fiber
		meal.SugarGrams = estimate.Sugar
		meal.SodiumMilligrams = estimate.Sodium
		if estimate.MealType != "" {
			meal.MealType = string(estimate.MealType)
		}
		if estimate.Notes != "" {
			meal.Notes = estimate.Notes
		}
	}

	applyFields(&meal, overrides)

	err = s.db.WithContext(ctx).
		Where("user_id = ? AND meal_id = ?", userID, mealID).
		Save(&meal).Error
	if err != nil {
		s.logError(opReanalyze, "save_failed", err, zap.String("user_id", userID), zap.String("meal_id", mealID))
		return Meal{}, newServiceError(opReanalyze, "save_failed", err)
	}
	return meal, nil
}

// estimateIfNeeded invokes the estimator only when the caller left a
// nutritional or classification field blank. Estimator failure degrades to
// safe defaults so ingestion always produces an editable record.
func (s *Service) estimateIfNeeded(ctx context.Context, fields MealFields, input EstimateInput) Estimate {
	now := s.clock().UTC()
	if fields.Complete() {
		return Estimate{MealType: MealTypeSnack, ConsumedAt: now}
	}

	estimate, err := s.estimator.Estimate(ctx, input)
	if err != nil {
		s.logger.Warn("estimator failed, using defaults",
			zap.String("operation", opIngest),
			zap.Error(err))
		return Estimate{MealType: MealTypeSnack, ConsumedAt: now}
	}

	if estimate.MealType == "" {
		estimate.MealType = MealTypeSnack
	}
	if estimate.ConsumedAt.IsZero() {
		estimate.ConsumedAt = now
	}
	return estimate
}

// mergeIntoMeal applies the per-field precedence: caller value, then
// estimator output, then the hardcoded default.
func (s *Service) mergeIntoMeal(meal *Meal, fields MealFields, estimate Estimate) {
	meal.Calories = estimate.Calories
	meal.ProteinGrams = estimate.Protein
	meal.FatGrams = estimate.Fat
	meal.CarbsGrams = estimate.Carbs
	meal.FiberGrams = estimate.Fiber
	meal.SugarGrams = estimate.Sugar
	meal.SodiumMilligrams = estimate.Sodium
	meal.MealType = string(estimate.MealType)
	meal.ConsumedAtSeconds = estimate.ConsumedAt.UTC().Unix()
	meal.Notes = estimate.Notes

	applyFields(meal, fields)
}
