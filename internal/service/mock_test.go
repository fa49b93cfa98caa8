package service

import (
	"context"
	"sync"

	"catalog-frontend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ListProducts(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockAPI) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockAPI) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockAPI) UpdateProduct(ctx context.Context, id string, product *models.Product) (*models.Product, error) {
	args := m.Called(ctx, id, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockAPI) DeleteProduct(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPI) ListReviews(ctx context.Context, productID string) ([]models.Review, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Review), args.Error(1)
}

func (m *MockAPI) CreateReview(ctx context.Context, req *models.ReviewRequest) (*models.Review, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Review), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.CatalogEvent
}

func (p *recordingPublisher) PublishCatalogEvent(_ context.Context, event *models.CatalogEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

type recordingJournal struct {
	mu       sync.Mutex
	failures []*models.MutationFailure
}

func (j *recordingJournal) RecordFailure(_ context.Context, f *models.MutationFailure) error {
	j.mu.Lock()
	j.failures = append(j.failures, f)
	j.mu.Unlock()
	return nil
}
