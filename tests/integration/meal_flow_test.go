package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/mealtrack/backend/internal/auth"
	"github.com/mealtrack/backend/internal/meals"
	"github.com/mealtrack/backend/internal/server"
	"github.com/mealtrack/backend/internal/storage"
	"github.com/mealtrack/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	integrationSigningSecret = "integration-secret"
	jsonContentType          = "application/json"
)

type scriptedEstimator struct {
	estimate meals.Estimate
}

func (e *scriptedEstimator) Estimate(_ context.Context, _ meals.EstimateInput) (meals.Estimate, error) {
	return e.estimate, nil
}

func TestMealLoggingFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.Account{}, &meals.Meal{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	store, err := storage.NewLocalStore(testContext.TempDir(), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to construct store: %v", err)
	}

	estimator := &scriptedEstimator{estimate: meals.Estimate{
		Calories: 620, Protein: 28, Fat: 22, Carbs: 70, Fiber: 5, Sugar: 9, Sodium: 950,
		MealType:   meals.MealTypeLunch,
		ConsumedAt: time.Date(2026, time.April, 2, 12, 30, 0, 0, time.UTC),
		Notes:      "Chicken burrito with rice",
	}}

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: users.NewUUIDProvider(),
	})
	if err != nil {
		testContext.Fatalf("failed to build user service: %v", err)
	}
	mealService, err := meals.NewService(meals.ServiceConfig{
		Database:   db,
		Store:      store,
		Estimator:  estimator,
		IDProvider: meals.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build meal service: %v", err)
	}
	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(integrationSigningSecret),
		Issuer:        "mealtrack-auth",
		Audience:      "mealtrack-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to construct token issuer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		UserService:  userService,
		MealService:  mealService,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()
	client := testServer.Client()

	// Register and log in.
	registerBody, _ := json.Marshal(map[string]string{
		"email": "grace@example.com", "name": "Grace", "password": "hunter2",
	})
	registerResp, err := client.Post(testServer.URL+"/auth/register", jsonContentType, bytes.NewReader(registerBody))
	if err != nil {
		testContext.Fatalf("register request failed: %v", err)
	}
	defer registerResp.Body.Close()
	if registerResp.StatusCode != http.StatusCreated {
		testContext.Fatalf("expected 201 from register, got %d", registerResp.StatusCode)
	}

	loginBody, _ := json.Marshal(map[string]string{
		"email": "grace@example.com", "password": "hunter2",
	})
	loginResp, err := client.Post(testServer.URL+"/auth/login", jsonContentType, bytes.NewReader(loginBody))
	if err != nil {
		testContext.Fatalf("login request failed: %v", err)
	}
	defer loginResp.Body.Close()
	if loginResp.StatusCode != http.StatusOK {
		testContext.Fatalf("expected 200 from login, got %d", loginResp.StatusCode)
	}
	var tokenPayload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(loginResp.Body).Decode(&tokenPayload); err != nil {
		testContext.Fatalf("failed to decode login payload: %v", err)
	}
	if tokenPayload.TokenType != "Bearer" || tokenPayload.AccessToken == "" {
		testContext.Fatalf("unexpected token payload %+v", tokenPayload)
	}

	authorize := func(request *http.Request) {
		request.Header.Set("Authorization", "Bearer "+tokenPayload.AccessToken)
	}

	// Log a meal from a photo with a caller-supplied calorie override.
	imageBody := &bytes.Buffer{}
	writer := multipart.NewWriter(imageBody)
	part, err := writer.CreateFormFile("image", "lunch.jpg")
	if err != nil {
		testContext.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte("jpeg-bytes")); err != nil {
		testContext.Fatalf("failed to write image: %v", err)
	}
	if err := writer.WriteField("calories", "700"); err != nil {
		testContext.Fatalf("failed to write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		testContext.Fatalf("failed to close writer: %v", err)
	}
	imageReq, _ := http.NewRequest(http.MethodPost, testServer.URL+"/me/meals", imageBody)
	imageReq.Header.Set("Content-Type", writer.FormDataContentType())
	authorize(imageReq)
	imageResp, err := client.Do(imageReq)
	if err != nil {
		testContext.Fatalf("image meal request failed: %v", err)
	}
	defer imageResp.Body.Close()
	if imageResp.StatusCode != http.StatusCreated {
		testContext.Fatalf("expected 201 from image ingestion, got %d", imageResp.StatusCode)
	}
	var imageMeal struct {
		ID       string `json:"id"`
		Calories int64  `json:"calories"`
		Protein  int64  `json:"protein"`
		MealType string `json:"meal_type"`
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(imageResp.Body).Decode(&imageMeal); err != nil {
		testContext.Fatalf("failed to decode meal payload: %v", err)
	}
	if imageMeal.Calories != 700 {
		testContext.Fatalf("caller override must win, got %d calories", imageMeal.Calories)
	}
	if imageMeal.Protein != 28 || imageMeal.MealType != "lunch" {
		testContext.Fatalf("estimate must fill remaining fields, got %+v", imageMeal)
	}
	if imageMeal.ImageURL == "" {
		testContext.Fatalf("image meal must expose an image url")
	}

	// Log a second meal from a text description on another day.
	textBody, _ := json.Marshal(map[string]any{
		"description": "overnight oats",
		"calories":    350,
		"protein":     12, "fat": 8, "carbs": 55, "fiber": 7, "sugar": 14, "sodium": 120,
		"meal_type":   "breakfast",
		"consumed_at": "2026-04-03T08:00:00Z",
	})
	textReq, _ := http.NewRequest(http.MethodPost, testServer.URL+"/me/meals/text", bytes.NewReader(textBody))
	textReq.Header.Set("Content-Type", jsonContentType)
	authorize(textReq)
	textResp, err := client.Do(textReq)
	if err != nil {
		testContext.Fatalf("text meal request failed: %v", err)
	}
	defer textResp.Body.Close()
	if textResp.StatusCode != http.StatusCreated {
		testContext.Fatalf("expected 201 from text ingestion, got %d", textResp.StatusCode)
	}

	// The ledger lists both meals, newest first.
	listReq, _ := http.NewRequest(http.MethodGet, testServer.URL+"/me/meals", nil)
	authorize(listReq)
	listResp, err := client.Do(listReq)
	if err != nil {
		testContext.Fatalf("list request failed: %v", err)
	}
	defer listResp.Body.Close()
	var listed []struct {
		ID         string `json:"id"`
		ConsumedAt string `json:"consumed_at"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		testContext.Fatalf("failed to decode listing: %v", err)
	}
	if len(listed) != 2 {
		testContext.Fatalf("expected two meals, got %d", len(listed))
	}
	if listed[0].ConsumedAt != "2026-04-03T08:00:00Z" {
		testContext.Fatalf("expected newest meal first, got %+v", listed)
	}

	// The summary has one sparse entry per logged day.
	summaryReq, _ := http.NewRequest(http.MethodGet, testServer.URL+"/me/summary?from=2026-04-01&to=2026-04-05", nil)
	authorize(summaryReq)
	summaryResp, err := client.Do(summaryReq)
	if err != nil {
		testContext.Fatalf("summary request failed: %v", err)
	}
	defer summaryResp.Body.Close()
	var summary struct {
		Days []struct {
			Date          string `json:"date"`
			TotalCalories int64  `json:"total_calories"`
			Meals         int64  `json:"meals"`
		} `json:"days"`
	}
	if err := json.NewDecoder(summaryResp.Body).Decode(&summary); err != nil {
		testContext.Fatalf("failed to decode summary: %v", err)
	}
	if len(summary.Days) != 2 {
		testContext.Fatalf("expected two summary days, got %+v", summary.Days)
	}
	if summary.Days[0].Date != "2026-04-02" || summary.Days[0].TotalCalories != 700 || summary.Days[0].Meals != 1 {
		testContext.Fatalf("unexpected first day %+v", summary.Days[0])
	}
	if summary.Days[1].Date != "2026-04-03" || summary.Days[1].TotalCalories != 350 || summary.Days[1].Meals != 1 {
		testContext.Fatalf("unexpected second day %+v", summary.Days[1])
	}

	// Deleting the photo meal shrinks the ledger.
	deleteReq, _ := http.NewRequest(http.MethodDelete, testServer.URL+"/me/meals/"+imageMeal.ID, nil)
	authorize(deleteReq)
	deleteResp, err := client.Do(deleteReq)
	if err != nil {
		testContext.Fatalf("delete request failed: %v", err)
	}
	defer deleteResp.Body.Close()
	if deleteResp.StatusCode != http.StatusNoContent {
		testContext.Fatalf("expected 204 from delete, got %d", deleteResp.StatusCode)
	}
}
