package meals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubEstimator struct {
	result    Estimate
	err       error
	calls     int
	lastInput EstimateInput
}

func (e *stubEstimator) Estimate(_ context.Context, input EstimateInput) (Estimate, error) {
	e.calls++
	e.lastInput = input
	if e.err != nil {
		return Estimate{}, e.err
	}
	return e.result, nil
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	next    int
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (s *memoryStore) Put(userID string, data []byte, filenameHint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.next++
	reference := fmt.Sprintf("%s/object-%d.jpg", userID, s.next)
	s.objects[reference] = append([]byte(nil), data...)
	return reference, nil
}

func (s *memoryStore) Read(reference string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[reference]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (s *memoryStore) Delete(reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[reference]; !ok {
		return errors.New("object not found")
	}
	delete(s.objects, reference)
	return nil
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("meal-%d", p.next), nil
}

var testNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, estimator *stubEstimator) (*Service, *memoryStore, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:meals_test_%d_%s?mode=memory&cache=shared", time.Now().UnixNano(), t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Meal{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	store := newMemoryStore()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Store:      store,
		Estimator:  estimator,
		Clock:      func() time.Time { return testNow },
		IDProvider: &sequenceIDProvider{},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, store, db
}

func intPtr(v int64) *int64 {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func typePtr(v MealType) *MealType {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func fullFields(consumedAt time.Time) MealFields {
	return MealFields{
		Calories:   intPtr(640),
		Protein:    intPtr(32),
		Fat:        intPtr(20),
		Carbs:      intPtr(71),
		Fiber:      intPtr(9),
		Sugar:      intPtr(12),
		Sodium:     intPtr(820),
		MealType:   typePtr(MealTypeLunch),
		ConsumedAt: timePtr(consumedAt),
		Notes:      strPtr("grilled chicken bowl"),
	}
}
