package meals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mealtrack/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	secondsPerDay = 86400
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingStore      = errors.New("object store is required")
	errMissingEstimator  = errors.New("estimator is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "meals.service.new"
	opInsert     = "meals.insert"
	opGet        = "meals.get"
	opUpdate     = "meals.update"
	opDelete     = "meals.delete"
	opList       = "meals.list"
	opSummarize  = "meals.summarize"
	opIngest     = "meals.ingest"
	opReanalyze  = "meals.reanalyze"
)

// ServiceError carries a dotted operation/reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ObjectStore persists uploaded meal images.
type ObjectStore interface {
	Put(userID string, data []byte, filenameHint string) (string, error)
	Read(reference string) ([]byte, error)
	Delete(reference string) error
}

// ServiceConfig describes the dependencies of the meal service.
type ServiceConfig struct {
	Database   *gorm.DB
	Store      ObjectStore
	Estimator  Estimator
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the meal ledger, the ingestion pipeline and the summary
// aggregation.
type Service struct {
	db        *gorm.DB
	store     ObjectStore
	estimator Estimator
	clock     func() time.Time
	ids       IDProvider
	logger    *zap.Logger
}

// NewService validates dependencies and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Estimator == nil {
		return nil, newServiceError(opServiceNew, "missing_estimator", errMissingEstimator)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:        cfg.Database,
		store:     cfg.Store,
		estimator: cfg.Estimator,
		clock:     clock,
		ids:       cfg.IDProvider,
		logger:    logger,
	}, nil
}

// insert assigns identity and creation time, then writes the record.
func (s *Service) insert(ctx context.Context, meal *Meal) error {
	mealID, err := s.ids.NewID()
	if err != nil {
		s.logError(opInsert, "id_generation_failed", err, zap.String("user_id", meal.UserID))
		return newServiceError(opInsert, "id_generation_failed", err)
	}
	meal.MealID = mealID
	meal.CreatedAtSeconds = s.clock().UTC().Unix()

	if err := s.db.WithContext(ctx).Create(meal).Error; err != nil {
		s.logError(opInsert, "create_failed", err, zap.String("user_id", meal.UserID))
		return newServiceError(opInsert, "create_failed", err)
	}
	return nil
}

// Get returns the meal when owned by the user, otherwise ErrMealNotFound.
// Ownership violations are indistinguishable from absence.
func (s *Service) Get(ctx context.Context, userID, mealID string) (Meal, error) {
	if userID == "" {
		return Meal{}, ErrInvalidUserID
	}

	var meal Meal
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND meal_id = ?", userID, mealID).
		Take(&meal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Meal{}, ErrMealNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("user_id", userID), zap.String("meal_id", mealID))
		return Meal{}, newServiceError(opGet, "query_failed", err)
	}
	return meal, nil
}

// Update overwrites the supplied fields on a meal owned by the user.
func (s *Service) Update(ctx context.Context, userID, mealID string, fields MealFields) (Meal, error) {
	meal, err := s.Get(ctx, userID, mealID)
	if err != nil {
		return Meal{}, err
	}

	applyFields(&meal, fields)

	err = s.db.WithContext(ctx).
		Where("user_id = ? AND meal_id = ?", userID, mealID).
		Save(&meal).Error
	if err != nil {
		s.logError(opUpdate, "save_failed", err, zap.String("user_id", userID), zap.String("meal_id", mealID))
		return Meal{}, newServiceError(opUpdate, "save_failed", err)
	}
	return meal, nil
}

// Delete removes the meal and then best-effort deletes the stored image. A
// failed image deletion is logged and never surfaces to the caller.
func (s *Service) Delete(ctx context.Context, userID, mealID string) error {
	meal, err := s.Get(ctx, userID, mealID)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND meal_id = ?", userID, mealID).
		Delete(&Meal{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("user_id", userID), zap.String("meal_id", mealID))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMealNotFound
	}

	if meal.ImagePath != "" {
		if err := s.store.Delete(meal.ImagePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("orphaned image after meal delete",
				zap.String("operation", opDelete),
				zap.String("user_id", userID),
				zap.String("meal_id", mealID),
				zap.String("image_path", meal.ImagePath),
				zap.Error(err))
		}
	}
	return nil
}

// List returns the user's meals ordered by consumed-at descending, optionally
// restricted to the half-open interval [From, To).
func (s *Service) List(ctx context.Context, userID string, query ListQuery) ([]Meal, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	tx := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if query.From != nil {
		tx = tx.Where("consumed_at_s >= ?", query.From.UTC().Unix())
	}
	if query.To != nil {
		tx = tx.Where("consumed_at_s < ?", query.To.UTC().Unix())
	}

	var results []Meal
	err := tx.Order("consumed_at_s DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return results, nil
}

type summaryRow struct {
	Day      int64
	Total    int64
	MealsNum int64
}

// Summarize aggregates calories and meal counts per UTC calendar day within
// [from, to). Days without meals are omitted.
func (s *Service) Summarize(ctx context.Context, userID string, from, to time.Time) ([]DailySummary, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !from.Before(to) {
		return nil, ErrInvalidTimeRange
	}

	var rows []summaryRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT consumed_at_s / ? AS day, SUM(calories) AS total, COUNT(*) AS meals_num
		 FROM meals
		 WHERE user_id = ? AND consumed_at_s >= ? AND consumed_at_s < ?
		 GROUP BY day
		 ORDER BY day ASC`,
		secondsPerDay, userID, from.UTC().Unix(), to.UTC().Unix(),
	).Scan(&rows).Error
	if err != nil {
		s.logError(opSummarize, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opSummarize, "query_failed", err)
	}

	summaries := make([]DailySummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, DailySummary{
			Date:          time.Unix(row.Day*secondsPerDay, 0).UTC(),
			TotalCalories: row.Total,
			MealCount:     row.MealsNum,
		})
	}
	return summaries, nil
}

func applyFields(meal *Meal, fields MealFields) {
	if fields.Calories != nil {
		meal.Calories = *fields.Calories
	}
	if fields.Protein != nil {
		meal.ProteinGrams = *fields.Protein
	}
	if fields.Fat != nil {
		meal.FatGrams = *fields.Fat
	}
	if fields.Carbs != nil {
		meal.CarbsGrams = *fields.Carbs
	}
	if fields.Fiber != nil {
		meal.FiberGrams = *fields.Fiber
	}
	if fields.Sugar != nil {
		meal.SugarGrams = *fields.Sugar
	}
	if fields.Sodium != nil {
		meal.SodiumMilligrams = *fields.Sodium
	}
	if fields.MealType != nil {
		meal.MealType = string(*fields.MealType)
	}
	if fields.ConsumedAt != nil {
		meal.ConsumedAtSeconds = fields.ConsumedAt.UTC().Unix()
	}
	if fields.Notes != nil {
		meal.Notes = *fields.Notes
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("meals service error", attrs...)
}
