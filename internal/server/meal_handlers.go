package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mealtrack/backend/internal/meals"
	"go.uber.org/zap"
)

const maxImageBytes = 10 << 20

type mealResponsePayload struct {
	ID         string `json:"id"`
	Calories   int64  `json:"calories"`
	Protein    int64  `json:"protein"`
	Fat        int64  `json:"fat"`
	Carbs      int64  `json:"carbs"`
	Fiber      int64  `json:"fiber"`
	Sugar      int64  `json:"sugar"`
	Sodium     int64  `json:"sodium"`
	MealType   string `json:"meal_type"`
	ConsumedAt string `json:"consumed_at"`
	Notes      string `json:"notes"`
	ImageURL   string `json:"image_url,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toMealResponse(meal meals.Meal) mealResponsePayload {
	imageURL := ""
	if meal.ImagePath != "" {
		imageURL = "/uploads/" + meal.ImagePath
	}
	return mealResponsePayload{
		ID:         meal.MealID,
		Calories:   meal.Calories,
		Protein:    meal.ProteinGrams,
		Fat:        meal.FatGrams,
		Carbs:      meal.CarbsGrams,
		Fiber:      meal.FiberGrams,
		Sugar:      meal.SugarGrams,
		Sodium:     meal.SodiumMilligrams,
		MealType:   meal.MealType,
		ConsumedAt: meal.ConsumedAt().Format(time.RFC3339),
		Notes:      meal.Notes,
		ImageURL:   imageURL,
		CreatedAt:  time.Unix(meal.CreatedAtSeconds, 0).UTC().Format(time.RFC3339),
	}
}

// mealFieldsPayload carries the optional overrides accepted by the JSON flows.
type mealFieldsPayload struct {
	Calories   *int64  `json:"calories"`
	Protein    *int64  `json:"protein"`
	Fat        *int64  `json:"fat"`
	Carbs      *int64  `json:"carbs"`
	Fiber      *int64  `json:"fiber"`
	Sugar      *int64  `json:"sugar"`
	Sodium     *int64  `json:"sodium"`
	MealType   *string `json:"meal_type"`
	ConsumedAt *string `json:"consumed_at"`
	Notes      *string `json:"notes"`
}

func (p mealFieldsPayload) toFields() (meals.MealFields, error) {
	fields := meals.MealFields{
		Calories: p.Calories,
		Protein:  p.Protein,
		Fat:      p.Fat,
		Carbs:    p.Carbs,
		Fiber:    p.Fiber,
		Sugar:    p.Sugar,
		Sodium:   p.Sodium,
		Notes:    p.Notes,
	}
	if p.MealType != nil {
		mealType, err := meals.ParseMealType(*p.MealType)
		if err != nil {
			return meals.MealFields{}, err
		}
		fields.MealType = &mealType
	}
	if p.ConsumedAt != nil {
		consumedAt, err := parseUTCTimestamp(*p.ConsumedAt)
		if err != nil {
			return meals.MealFields{}, err
		}
		fields.ConsumedAt = &consumedAt
	}
	return fields, nil
}

// multipartFields extracts the optional overrides from an image-flow form.
func multipartFields(c *gin.Context) (meals.MealFields, error) {
	payload := mealFieldsPayload{}
	numeric := map[string]**int64{
		"calories": &payload.Calories,
		"protein":  &payload.Protein,
		"fat":      &payload.Fat,
		"carbs":    &payload.Carbs,
		"fiber":    &payload.Fiber,
		"sugar":    &payload.Sugar,
		"sodium":   &payload.Sodium,
	}
	for name, target := range numeric {
		raw, ok := c.GetPostForm(name)
		if !ok || raw == "" {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return meals.MealFields{}, err
		}
		*target = &value
	}
	if raw, ok := c.GetPostForm("meal_type"); ok && raw != "" {
		payload.MealType = &raw
	}
	if raw, ok := c.GetPostForm("consumed_at"); ok && raw != "" {
		payload.ConsumedAt = &raw
	}
	if raw, ok := c.GetPostForm("notes"); ok {
		payload.Notes = &raw
	}
	return payload.toFields()
}

func (h *httpHandler) handleCreateMealFromImage(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_required"})
		return
	}
	if fileHeader.Size > maxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_too_large"})
		return
	}

	fields, err := multipartFields(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		h.logger.Error("failed to read uploaded image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}

	meal, err := h.mealService.CreateFromImage(c.Request.Context(), userID, meals.ImageIngestion{
		Image:    image,
		Filename: fileHeader.Filename,
		Fields:   fields,
	})
	if err != nil {
		h.respondMealError(c, err, "meal_create_failed")
		return
	}
	c.JSON(http.StatusCreated, toMealResponse(meal))
}

type textMealRequestPayload struct {
	Description string `json:"description"`
	mealFieldsPayload
}

func (h *httpHandler) handleCreateMealFromText(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request textMealRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	fields, err := request.toFields()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	meal, err := h.mealService.CreateFromText(c.Request.Context(), userID, meals.TextIngestion{
		Description: request.Description,
		Fields:      fields,
	})
	if err != nil {
		h.respondMealError(c, err, "meal_create_failed")
		return
	}
	c.JSON(http.StatusCreated, toMealResponse(meal))
}

func (h *httpHandler) handleListMeals(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	query := meals.ListQuery{Limit: 50}
	if raw := c.Query("from"); raw != "" {
		from, err := parseUTCTimestamp(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_from"})
			return
		}
		query.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseUTCTimestamp(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_to"})
			return
		}
		query.To = &to
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		query.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_offset"})
			return
		}
		query.Offset = offset
	}

	listed, err := h.mealService.List(c.Request.Context(), userID, query)
	if err != nil {
		h.respondMealError(c, err, "meal_list_failed")
		return
	}

	response := make([]mealResponsePayload, 0, len(listed))
	for _, meal := range listed {
		response = append(response, toMealResponse(meal))
	}
	c.JSON(http.StatusOK, response)
}

type dailySummaryPayload struct {
	Date          string `json:"date"`
	TotalCalories int64  `json:"total_calories"`
	Meals         int64  `json:"meals"`
}

type summaryResponsePayload struct {
	From string                `json:"from"`
	To   string                `json:"to"`
	Days []dailySummaryPayload `json:"days"`
}

func (h *httpHandler) handleSummary(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	from, err := parseUTCTimestamp(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_from"})
		return
	}
	to, err := parseUTCTimestamp(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_to"})
		return
	}

	summaries, err := h.mealService.Summarize(c.Request.Context(), userID, from, to)
	if err != nil {
		h.respondMealError(c, err, "summary_failed")
		return
	}

	response := summaryResponsePayload{
		From: from.Format(time.RFC3339),
		To:   to.Format(time.RFC3339),
		Days: make([]dailySummaryPayload, 0, len(summaries)),
	}
	for _, day := range summaries {
		response.Days = append(response.Days, dailySummaryPayload{
			Date:          day.Date.Format("2006-01-02"),
			TotalCalories: day.TotalCalories,
			Meals:         day.MealCount,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleUpdateMeal(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request mealFieldsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	fields, err := request.toFields()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	meal, err := h.mealService.Update(c.Request.Context(), userID, c.Param("id"), fields)
	if err != nil {
		h.respondMealError(c, err, "meal_update_failed")
		return
	}
	c.JSON(http.StatusOK, toMealResponse(meal))
}

func (h *httpHandler) handleDeleteMeal(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	if err := h.mealService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondMealError(c, err, "meal_delete_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

type reanalyzeRequestPayload struct {
	Corrections string `json:"corrections"`
	mealFieldsPayload
}

func (h *httpHandler) handleReanalyzeMeal(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request reanalyzeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	fields, err := request.toFields()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	meal, err := h.mealService.Reanalyze(c.Request.Context(), userID, c.Param("id"), request.Corrections, fields)
	if err != nil {
		h.respondMealError(c, err, "meal_reanalyze_failed")
		return
	}
	c.JSON(http.StatusOK, toMealResponse(meal))
}

// respondMealError maps service failures onto HTTP statuses. Ownership
// violations already surface as not-found from the service layer.
func (h *httpHandler) respondMealError(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, meals.ErrMealNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, meals.ErrMissingImage),
		errors.Is(err, meals.ErrMissingDescription),
		errors.Is(err, meals.ErrInvalidMealType),
		errors.Is(err, meals.ErrInvalidTimeRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("meal operation failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}
