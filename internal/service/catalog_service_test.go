package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"catalog-frontend/internal/apiclient"
	"catalog-frontend/internal/models"
	"catalog-frontend/internal/query"
	"catalog-frontend/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestService(api *MockAPI, opts ...func(*Deps)) *CatalogService {
	deps := Deps{
		API:        api,
		Cache:      query.NewClient(query.Options{StaleTime: time.Hour}),
		InstanceID: "instance-a",
		Now:        func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewCatalogService(deps)
}

func TestCreateProductScenario(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *models.Product) bool {
		return p.Name == "Lamp" &&
			p.Price == 25 &&
			p.SellingPrice == 25 &&
			p.Category == "Lighting" &&
			p.MinimumQuantity == 3 &&
			p.QuantityOnHand == 3 &&
			len(p.Tags) == 0 && p.Tags != nil &&
			len(p.ImageURLs) == 0 && p.ImageURLs != nil &&
			p.ReservedQuantity == 10 &&
			p.Discount == 20 &&
			p.AddedBy == "Mame" &&
			p.Use == "for_rent" &&
			p.ID == ""
	})).Return(&models.Product{ID: "new-1", Name: "Lamp"}, nil).Once()

	created, err := svc.CreateProduct(context.Background(), "tok-1", validation.ProductInput{
		ProductName: "Lamp",
		Description: "Desk lamp",
		Price:       "25",
		Category:    "Lighting",
		Quantity:    "3",
	})

	require.NoError(t, err)
	assert.Equal(t, "new-1", created.ID)
	api.AssertExpectations(t)
}

func TestBuildProductNormalizes(t *testing.T) {
	form := validation.ParseProduct(validation.ProductInput{
		ProductName: "  Lamp ",
		Description: " Desk lamp ",
		Price:       "19.5",
		Category:    " Lighting ",
		Quantity:    "2",
		Tags:        " home, desk ,",
		ImageURL:    "https://img.example.com/lamp.png",
	})
	require.Nil(t, form.Validate())

	p := BuildProduct(form, fixedNow)

	assert.Equal(t, "Lamp", p.Name)
	assert.Equal(t, "Desk lamp", p.Description)
	assert.Equal(t, "Lighting", p.Category)
	assert.Equal(t, []string{"home", "desk"}, p.Tags)
	assert.Equal(t, []string{"https://img.example.com/lamp.png"}, p.ImageURLs)
	assert.Equal(t, 2, p.QuantityOnHand)
	assert.Equal(t, models.Price(19.5), p.SellingPrice)
}

func TestBuildProductClampsQuantity(t *testing.T) {
	huge := 1e30
	form := validation.ProductForm{ProductName: "Lamp", Description: "d", Category: "c", Quantity: &huge}

	p := BuildProduct(form, fixedNow)

	assert.Equal(t, validation.MaxQuantity, p.QuantityOnHand)
	assert.Equal(t, validation.MaxQuantity, p.MinimumQuantity)
}

func TestBuildProductExpiryIsOneYearOut(t *testing.T) {
	form := validation.ParseProduct(validation.ProductInput{
		ProductName: "Lamp", Description: "d", Price: "1", Category: "c", Quantity: "1",
	})

	p := BuildProduct(form, fixedNow)

	expiry, err := time.Parse(time.RFC3339Nano, p.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, fixedNow.Add(365*24*time.Hour), expiry, 2*time.Second)
	assert.Equal(t, "2026-01-15T10:30:00.000Z", p.ExpiresAt)
}

func TestCreateProductInvalidMakesNoNetworkCall(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	_, err := svc.CreateProduct(context.Background(), "tok", validation.ProductInput{
		ProductName: "",
		Price:       "-1",
		Quantity:    "1.5",
		ImageURL:    "nope",
	})

	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Contains(t, fe, "productName")
	assert.Contains(t, fe, "price")
	assert.Contains(t, fe, "quantity")
	assert.Contains(t, fe, "imageUrl")
	api.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestCreateProductFailureIsJournaled(t *testing.T) {
	api := new(MockAPI)
	journal := &recordingJournal{}
	svc := newTestService(api, func(d *Deps) { d.Failures = journal })

	apiErr := &apiclient.APIError{Method: http.MethodPost, Path: "/products", StatusCode: 500, Body: "boom"}
	api.On("CreateProduct", mock.Anything, mock.Anything).Return(nil, apiErr).Once()

	_, err := svc.CreateProduct(context.Background(), "tok", validation.ProductInput{
		ProductName: "Lamp", Description: "d", Price: "1", Category: "c", Quantity: "1",
	})

	require.Error(t, err)
	require.Len(t, journal.failures, 1)
	assert.Equal(t, models.MutationCreateProduct, journal.failures[0].Kind)
	assert.Equal(t, 500, journal.failures[0].StatusCode)
	assert.Contains(t, journal.failures[0].Payload, `"addedBy":"Mame"`)
}

func TestCreateProductDoesNotInvalidateList(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil).Once()
	api.On("CreateProduct", mock.Anything, mock.Anything).Return(&models.Product{ID: "n"}, nil).Once()

	_, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	_, err = svc.CreateProduct(context.Background(), "", validation.ProductInput{
		ProductName: "Lamp", Description: "d", Price: "1", Category: "c", Quantity: "1",
	})
	require.NoError(t, err)
	_, err = svc.ListProducts(context.Background())
	require.NoError(t, err)

	api.AssertNumberOfCalls(t, "ListProducts", 1)
}

func TestSubmissionGuardBlocksDuplicateToken(t *testing.T) {
	api := new(MockAPI)
	locker := NewMemoryLocker()
	svc := newTestService(api, func(d *Deps) { d.Locker = locker })

	held, err := locker.AcquireLock(context.Background(), "submit:tok", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = svc.CreateProduct(context.Background(), "tok", validation.ProductInput{
		ProductName: "Lamp", Description: "d", Price: "1", Category: "c", Quantity: "1",
	})

	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	api.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestUpdateSendsWholeLocalCopyAndRefetchesOnce(t *testing.T) {
	api := new(MockAPI)
	events := &recordingPublisher{}
	svc := newTestService(api, func(d *Deps) { d.Events = events })

	original := []models.Product{{
		ID: "42", Name: "Lamp", Price: 25, Category: "Lighting",
		AddedBy: "Mame", Discount: 20, Tags: []string{"home"}, ImageURLs: []string{"https://a/1.png"},
	}}
	api.On("ListProducts", mock.Anything).Return(original, nil).Twice()
	api.On("UpdateProduct", mock.Anything, "42", mock.MatchedBy(func(p *models.Product) bool {
		return p.ID == "42" &&
			p.Name == "Big Lamp" &&
			p.Price == 30 &&
			p.Category == "Lighting" &&
			p.AddedBy == "Mame" &&
			p.Discount == 20 &&
			len(p.Tags) == 1 &&
			len(p.ImageURLs) == 1 && p.ImageURLs[0] == "https://a/2.png"
	})).Return(&models.Product{ID: "42"}, nil).Once()

	_, err := svc.ListProducts(context.Background())
	require.NoError(t, err)

	_, err = svc.UpdateProduct(context.Background(), "tok", "42", ProductEdit{
		Name: "Big Lamp", ImageURL: "https://a/2.png", Description: "", Price: "30", Category: "Lighting",
	})
	require.NoError(t, err)

	// fresh again after the single post-invalidation refetch
	_, err = svc.ListProducts(context.Background())
	require.NoError(t, err)
	_, err = svc.ListProducts(context.Background())
	require.NoError(t, err)

	api.AssertNumberOfCalls(t, "ListProducts", 2)
	assert.Equal(t, "Lamp", original[0].Name, "cached list must not be edited in place")
	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventTypeProductUpdated, events.events[0].EventType)
	assert.Equal(t, "instance-a", events.events[0].Origin)
	api.AssertExpectations(t)
}

func TestUpdateFailureKeepsCache(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil).Once()
	api.On("UpdateProduct", mock.Anything, "1", mock.Anything).Return(nil, errors.New("network down")).Once()

	_, err := svc.UpdateProduct(context.Background(), "", "1", ProductEdit{Name: "x", Price: "3"})
	require.Error(t, err)

	_, err = svc.ListProducts(context.Background())
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "ListProducts", 1)
}

func TestUpdateRejectsUnparsablePrice(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)
	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil).Once()

	_, err := svc.UpdateProduct(context.Background(), "", "1", ProductEdit{Name: "x", Price: "abc"})

	assert.ErrorIs(t, err, ErrInvalidEdit)
	api.AssertNotCalled(t, "UpdateProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateUnknownProduct(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)
	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil).Once()

	_, err := svc.UpdateProduct(context.Background(), "", "missing", ProductEdit{Price: "1"})

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestDeleteRefetchesListOnceWithSubscriber(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil).Twice()
	api.On("DeleteProduct", mock.Anything, "2").Return(nil).Once()

	_, err := svc.ListProducts(context.Background())
	require.NoError(t, err)

	refetched := make(chan query.State, 2)
	stop := svc.WatchProducts(func(s query.State) { refetched <- s })
	defer stop()

	require.NoError(t, svc.DeleteProduct(context.Background(), "2"))

	select {
	case st := <-refetched:
		assert.Equal(t, query.StatusSuccess, st.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("product list was not refetched")
	}
	select {
	case <-refetched:
		t.Fatal("product list refetched more than once")
	case <-time.After(50 * time.Millisecond):
	}
	api.AssertNumberOfCalls(t, "ListProducts", 2)
}

func TestDeleteFailureDoesNotInvalidate(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil).Once()
	api.On("DeleteProduct", mock.Anything, "2").Return(errors.New("boom")).Once()

	_, _ = svc.ListProducts(context.Background())
	assert.Error(t, svc.DeleteProduct(context.Background(), "2"))
	_, _ = svc.ListProducts(context.Background())

	api.AssertNumberOfCalls(t, "ListProducts", 1)
}

func TestProductDetailSuccess(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("GetProduct", mock.Anything, "42").Return(&models.Product{ID: "42", Name: "Lamp"}, nil).Once()
	api.On("ListReviews", mock.Anything, "42").Return([]models.Review{{ReviewerName: "Ann", Rating: 5}}, nil).Once()

	detail, err := svc.ProductDetail(context.Background(), "42")

	require.NoError(t, err)
	assert.Equal(t, query.StatusSuccess, detail.Status)
	assert.Equal(t, "Lamp", detail.Product.Name)
	assert.Len(t, detail.Reviews, 1)
}

func TestProductDetailReviewsFailureFailsView(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("GetProduct", mock.Anything, "42").Return(&models.Product{ID: "42", Name: "Lamp"}, nil).Once()
	api.On("ListReviews", mock.Anything, "42").Return(nil, errors.New("reviews down")).Once()

	detail, err := svc.ProductDetail(context.Background(), "42")

	require.Error(t, err)
	assert.Equal(t, query.StatusError, detail.Status)
	assert.Nil(t, detail.Product)
	assert.Contains(t, err.Error(), "reviews down")
}

func TestSubmitReviewInvalidRatingBlocksSubmission(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	_, err := svc.SubmitReview(context.Background(), "tok", validation.ReviewInput{
		ProductID: "42", ReviewerName: "Ann", Rating: "abc", Comment: "nice",
	})

	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Rating is required", fe["rating"])
	api.AssertNotCalled(t, "CreateReview", mock.Anything, mock.Anything)
}

func TestSubmitReviewDoesNotTouchCachedReviews(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api)

	api.On("GetProduct", mock.Anything, "42").Return(&models.Product{ID: "42"}, nil).Once()
	api.On("ListReviews", mock.Anything, "42").Return([]models.Review{}, nil).Once()
	api.On("CreateReview", mock.Anything, &models.ReviewRequest{
		ProductID: "42", ReviewerName: "Ann", Rating: 4, Comment: "nice",
	}).Return(&models.Review{ID: "r1"}, nil).Once()

	_, err := svc.ProductDetail(context.Background(), "42")
	require.NoError(t, err)

	_, err = svc.SubmitReview(context.Background(), "tok", validation.ReviewInput{
		ProductID: "42", ReviewerName: "Ann", Rating: "4", Comment: "nice",
	})
	require.NoError(t, err)

	detail, err := svc.ProductDetail(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, detail.Reviews)
	api.AssertNumberOfCalls(t, "ListReviews", 1)
}

func TestHandleCatalogEvent(t *testing.T) {
	api := new(MockAPI)
	cache := query.NewClient(query.Options{StaleTime: time.Hour})
	svc := newTestService(api, func(d *Deps) { d.Cache = cache })

	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil)
	_, _ = svc.ListProducts(context.Background())

	require.NoError(t, svc.HandleCatalogEvent(context.Background(), &models.CatalogEvent{
		EventType: models.EventTypeProductDeleted, ProductID: "1", Origin: "instance-a",
	}))
	st, _ := cache.State(KeyProducts)
	assert.False(t, st.Stale, "own events are ignored")

	require.NoError(t, svc.HandleCatalogEvent(context.Background(), &models.CatalogEvent{
		EventType: models.EventTypeProductDeleted, ProductID: "1", Origin: "instance-b",
	}))
	st, _ = cache.State(KeyProducts)
	assert.True(t, st.Stale)
}

func TestWatchProductsIgnoresOrdinaryFetches(t *testing.T) {
	api := new(MockAPI)
	svc := newTestService(api, func(d *Deps) { d.Cache = query.NewClient(query.Options{}) })
	api.On("ListProducts", mock.Anything).Return(sampleProducts(), nil)

	notified := make(chan query.State, 4)
	stop := svc.WatchProducts(func(s query.State) { notified <- s })
	defer stop()

	_, err := svc.ListProducts(context.Background())
	require.NoError(t, err)

	select {
	case <-notified:
		t.Fatal("a view's own fetch must not notify watchers")
	case <-time.After(50 * time.Millisecond):
	}
}
