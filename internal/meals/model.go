package meals

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MealType classifies a logged meal.
type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

var (
	// ErrMealNotFound indicates the meal does not exist or is not owned by the caller.
	ErrMealNotFound = errors.New("meals: meal not found")
	// ErrInvalidMealType indicates a value outside the meal type enumeration.
	ErrInvalidMealType = errors.New("meals: invalid meal type")
	// ErrMissingImage indicates an image ingestion without image bytes.
	ErrMissingImage = errors.New("meals: image payload required")
	// ErrMissingDescription indicates a text ingestion without a description.
	ErrMissingDescription = errors.New("meals: description required")
	// ErrInvalidTimeRange indicates a range whose start is not before its end.
	ErrInvalidTimeRange = errors.New("meals: invalid time range")
	// ErrInvalidUserID indicates an empty owning user identifier.
	ErrInvalidUserID = errors.New("meals: invalid user id")
)

// ParseMealType validates raw input against the enumeration.
func ParseMealType(raw string) (MealType, error) {
	switch MealType(strings.ToLower(strings.TrimSpace(raw))) {
	case MealTypeBreakfast:
		return MealTypeBreakfast, nil
	case MealTypeLunch:
		return MealTypeLunch, nil
	case MealTypeDinner:
		return MealTypeDinner, nil
	case MealTypeSnack:
		return MealTypeSnack, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMealType, raw)
	}
}

// Meal models one persisted eating event. Every stored row carries concrete
// nutritional values; the ingestion pipeline fills gaps before the write.
type Meal struct {
	MealID            string `gorm:"column:meal_id;primaryKey;size:190;not null"`
	UserID            string `gorm:"column:user_id;size:190;not null;index:idx_meals_user_consumed,priority:1"`
	ImagePath         string `gorm:"column:image_path;size:512;not null;default:''"`
	Calories          int64  `gorm:"column:calories;not null"`
	ProteinGrams      int64  `gorm:"column:protein_g;not null"`
	FatGrams          int64  `gorm:"column:fat_g;not null"`
	CarbsGrams        int64  `gorm:"column:carbs_g;not null"`
	FiberGrams        int64  `gorm:"column:fiber_g;not null"`
	SugarGrams        int64  `gorm:"column:sugar_g;not null"`
	SodiumMilligrams  int64  `gorm:"column:sodium_mg;not null"`
	MealType          string `gorm:"column:meal_type;size:16;not null"`
	ConsumedAtSeconds int64  `gorm:"column:consumed_at_s;not null;index:idx_meals_user_consumed,priority:2"`
	Notes             string `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAtSeconds  int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Meal) TableName() string {
	return "meals"
}

// ConsumedAt exposes the consumption time as UTC.
func (m Meal) ConsumedAt() time.Time {
	return time.Unix(m.ConsumedAtSeconds, 0).UTC()
}

// MealFields carries caller-supplied overrides. Nil pointers mean the caller
// left the field to the estimator.
type MealFields struct {
	Calories   *int64
	Protein    *int64
	Fat        *int64
	Carbs      *int64
	Fiber      *int64
	Sugar      *int64
	Sodium     *int64
	MealType   *MealType
	ConsumedAt *time.Time
	Notes      *string
}

// Complete reports whether every nutritional and classification field is
// caller-supplied, in which case the estimator is never invoked.
func (f MealFields) Complete() bool {
	return f.Calories != nil && f.Protein != nil && f.Fat != nil &&
		f.Carbs != nil && f.Fiber != nil && f.Sugar != nil && f.Sodium != nil &&
		f.MealType != nil && f.ConsumedAt != nil
}

// ImageIngestion is the image-flow ingestion variant.
type ImageIngestion struct {
	Image    []byte
	Filename string
	Fields   MealFields
}

// TextIngestion is the text-flow ingestion variant.
type TextIngestion struct {
	Description string
	Fields      MealFields
}

// ListQuery bounds a meal listing. From/To restrict consumed-at to the
// half-open interval [From, To) when set.
type ListQuery struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// DailySummary aggregates one UTC calendar day.
type DailySummary struct {
	Date          time.Time
	TotalCalories int64
	MealCount     int64
}
