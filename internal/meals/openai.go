package meals

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const visionPrompt = `Analyze this food and provide nutritional information in JSON format:
1. Food description: what food items are present?
2. Estimated calories: a reasonable estimate of total calories.
3. Protein, fat, carbohydrates, fiber, sugar: estimated grams.
4. Sodium: estimated milligrams.
5. Meal type: categorize as breakfast, lunch, dinner, or snack.
6. Notes: any additional nutritional observations.

Respond with a single valid JSON object using these keys:
{
  "food_description": "string",
  "estimated_calories": number,
  "protein": number,
  "fat": number,
  "carbs": number,
  "fiber": number,
  "sugar": number,
  "sodium": number,
  "meal_type": "breakfast|lunch|dinner|snack",
  "notes": "string"
}`

// OpenAIEstimatorConfig configures the vision model client.
type OpenAIEstimatorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Clock   func() time.Time
}

// OpenAIEstimator calls the OpenAI chat completions API with a vision prompt.
type OpenAIEstimator struct {
	client *resty.Client
	model  string
	clock  func() time.Time
}

// NewOpenAIEstimator constructs the estimator client.
func NewOpenAIEstimator(cfg OpenAIEstimatorConfig) (*OpenAIEstimator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("meals: estimator base url required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("meals: estimator model required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey).
		SetTimeout(timeout)

	return &OpenAIEstimator{client: client, model: cfg.Model, clock: clock}, nil
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// estimatePayload mirrors the JSON shape requested from the model. Pointers
// distinguish omitted fields so each can fall back independently.
type estimatePayload struct {
	FoodDescription   string   `json:"food_description"`
	EstimatedCalories *float64 `json:"estimated_calories"`
	Protein           *float64 `json:"protein"`
	Fat               *float64 `json:"fat"`
	Carbs             *float64 `json:"carbs"`
	Fiber             *float64 `json:"fiber"`
	Sugar             *float64 `json:"sugar"`
	Sodium            *float64 `json:"sodium"`
	MealType          string   `json:"meal_type"`
	Notes             string   `json:"notes"`
}

// Estimate sends the image or description to the model and parses the reply.
func (e *OpenAIEstimator) Estimate(ctx context.Context, input EstimateInput) (Estimate, error) {
	prompt := visionPrompt
	if input.Corrections != "" {
		prompt += "\n\nThe user supplied these corrections to a previous analysis; they take precedence over what you infer:\n" + input.Corrections
	}

	parts := []chatContentPart{{Type: "text", Text: prompt}}
	switch {
	case len(input.Image) > 0:
		encoded := base64.StdEncoding.EncodeToString(input.Image)
		parts = append(parts, chatContentPart{
			Type:     "image_url",
			ImageURL: &chatImageURL{URL: "data:image/jpeg;base64," + encoded},
		})
	case input.Text != "":
		parts = append(parts, chatContentPart{Type: "text", Text: "Food description: " + input.Text})
	case input.Corrections == "":
		// Corrections alone are valid evidence; they are already part of
		// the prompt above.
		return Estimate{}, fmt.Errorf("meals: estimator input requires an image, description, or corrections")
	}

	request := chatRequest{
		Model:     e.model,
		MaxTokens: 1000,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
	}

	var response chatResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(&request).
		SetResult(&response).
		ForceContentType("application/json").
		Post("/v1/chat/completions")
	if err != nil {
		return Estimate{}, fmt.Errorf("meals: estimator request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Estimate{}, fmt.Errorf("meals: estimator status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(response.Choices) == 0 {
		return Estimate{}, fmt.Errorf("meals: estimator returned no choices")
	}

	payload, err := extractEstimatePayload(response.Choices[0].Message.Content)
	if err != nil {
		return Estimate{}, err
	}

	return e.normalize(payload), nil
}

// extractEstimatePayload pulls the first JSON object out of the model reply,
// which may wrap it in prose or a code fence.
func extractEstimatePayload(content string) (estimatePayload, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return estimatePayload{}, fmt.Errorf("meals: no JSON object in estimator reply")
	}

	var payload estimatePayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return estimatePayload{}, fmt.Errorf("meals: malformed estimator reply: %w", err)
	}
	return payload, nil
}

func (e *OpenAIEstimator) normalize(payload estimatePayload) Estimate {
	mealType, err := ParseMealType(payload.MealType)
	if err != nil {
		mealType = MealTypeSnack
	}

	notes := strings.TrimSpace(payload.FoodDescription)
	if extra := strings.TrimSpace(payload.Notes); extra != "" {
		if notes != "" {
			notes += ". " + extra
		} else {
			notes = extra
		}
	}

	return Estimate{
		Calories:   roundedOrZero(payload.EstimatedCalories),
		Protein:    roundedOrZero(payload.Protein),
		Fat:        roundedOrZero(payload.Fat),
		Carbs:      roundedOrZero(payload.Carbs),
		Fiber:      roundedOrZero(payload.Fiber),
		Sugar:      roundedOrZero(payload.Sugar),
		Sodium:     roundedOrZero(payload.Sodium),
		MealType:   mealType,
		ConsumedAt: e.clock().UTC(),
		Notes:      notes,
	}
}

func roundedOrZero(value *float64) int64 {
	if value == nil {
		return 0
	}
	return int64(*value + 0.5)
}
